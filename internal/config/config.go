// Package config loads service configuration from defaults, an optional
// config file, an optional .env file and environment variables.
//
// Environment variables use the upper-cased key with dots replaced by
// underscores, for example DATABASE_URL or SALES_PROOF_REQUIRED_STATUSES.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Sales    SalesConfig    `mapstructure:"sales"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type AppConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Env      string `mapstructure:"env" validate:"oneof=development staging production"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// Development reports whether the service runs in development mode.
func (a AppConfig) Development() bool { return a.Env == "development" }

type HTTPConfig struct {
	Port               string        `mapstructure:"port" validate:"required"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	IdempotencyEnabled bool          `mapstructure:"idempotency_enabled"`
	MaxProofSize       int64         `mapstructure:"max_proof_size" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL              string        `mapstructure:"url" validate:"required"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gt=0"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// RedisConfig enables the distributed document lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Topic           string `mapstructure:"topic"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// NotifyConfig selects the notification transport: "kafka", "pubsub" or "log".
type NotifyConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=kafka pubsub log"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	Issuer string `mapstructure:"issuer"`
}

type SalesConfig struct {
	ProofRequiredStatuses []string `mapstructure:"proof_required_statuses"`
	RestrictSellAboveMRP  bool     `mapstructure:"restrict_sell_above_mrp"`
	RestrictSellBelowMSP  bool     `mapstructure:"restrict_sell_below_msp"`
	CreditLimitCheck      bool     `mapstructure:"credit_limit_check"`
	NumeratorStrategy     string   `mapstructure:"numerator_strategy" validate:"oneof=strict cached"`
}

type WorkerConfig struct {
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	IdempotencyInterval time.Duration `mapstructure:"idempotency_interval" validate:"gt=0"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl" validate:"gt=0"`
	MetricsPort         string        `mapstructure:"metrics_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "salesflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.idempotency_enabled", true)
	v.SetDefault("http.max_proof_size", 10<<20)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "salesflow.notifications")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "salesflow-notifications")
	v.SetDefault("pubsub.credentials_json", "")

	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", "status-proofs")
	v.SetDefault("gcs.credentials_json", "")

	v.SetDefault("notify.driver", "log")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "salesflow")

	v.SetDefault("sales.proof_required_statuses", []string{"POD", "Cancelled", "Returned"})
	v.SetDefault("sales.restrict_sell_above_mrp", false)
	v.SetDefault("sales.restrict_sell_below_msp", false)
	v.SetDefault("sales.credit_limit_check", true)
	v.SetDefault("sales.numerator_strategy", "strict")

	v.SetDefault("worker.reconcile_interval", 10*time.Minute)
	v.SetDefault("worker.idempotency_interval", time.Hour)
	v.SetDefault("worker.idempotency_ttl", 24*time.Hour)
	v.SetDefault("worker.metrics_port", "9091")
}

// Load reads configuration. A missing .env file or config file is not an error.
// The config file path is taken from SALESFLOW_CONFIG when set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("SALESFLOW_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Notify.Driver {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("invalid config: kafka.brokers is required for notify.driver=kafka")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" {
			return errors.New("invalid config: pubsub.project_id is required for notify.driver=pubsub")
		}
	}
	return nil
}
