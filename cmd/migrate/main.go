// Package main applies the embedded database migrations.
//
//	migrate up          apply all pending migrations
//	migrate down -n 1   roll back n migrations
//	migrate version     print the current version
//	migrate force -v 3  mark version 3 as clean after a failed run
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salesflow/internal/config"
	"salesflow/migrations"
	"salesflow/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development(),
		Service:     cfg.App.Name + "-migrate",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cmd := "up"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	steps := fs.Int("n", 1, "number of migrations to roll back")
	forceVersion := fs.Int("v", -1, "version to force")
	_ = fs.Parse(args)

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalw("failed to ping database", "error", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warnw("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-*steps)
	case "force":
		if *forceVersion < 0 {
			log.Fatal("force requires -v")
		}
		err = m.Force(*forceVersion)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalw("failed to read version", "error", verr)
		}
		log.Infow("current version", "version", version, "dirty", dirty)
		return
	default:
		log.Fatalw("unknown command", "command", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply")
		return
	}
	if err != nil {
		log.Fatalw("migration failed", "command", cmd, "error", err)
	}
	log.Infow("migrations applied", "command", cmd)
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}
