// Package filestore keeps status proof images in Google Cloud Storage.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"salesflow/internal/core/id"
	"salesflow/internal/domain/sales"
)

type bucket interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	Delete(ctx context.Context, object string) error
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.handle.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b gcsBucket) Delete(ctx context.Context, object string) error {
	err := b.handle.Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// GCS stores files under prefix/yyyy/mm/ in a bucket.
type GCS struct {
	client *storage.Client
	bucket bucket
	prefix string
	now    func() time.Time
}

// NewGCS creates a store. Empty credentialsJSON uses application default
// credentials.
func NewGCS(ctx context.Context, bucketName, prefix, credentialsJSON string) (*GCS, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: gcsBucket{handle: client.Bucket(bucketName)},
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}, nil
}

// Store implements sales.FileStore.
func (g *GCS) Store(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	object := g.objectName(name)

	w := g.bucket.NewWriter(ctx, object, contentType)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return object, nil
}

// Delete implements sales.FileStore. Missing objects are ignored.
func (g *GCS) Delete(ctx context.Context, object string) error {
	if err := g.bucket.Delete(ctx, object); err != nil {
		return fmt.Errorf("delete %s: %w", object, err)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GCS) objectName(name string) string {
	now := g.now().UTC()
	file := id.New().String() + "-" + sanitize(name)
	return path.Join(g.prefix, now.Format("2006"), now.Format("01"), file)
}

// sanitize keeps the base name and replaces anything outside [A-Za-z0-9._-].
func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "proof"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ sales.FileStore = (*GCS)(nil)
