package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"grocerysync/config"
	"grocerysync/pkg/logger"
)

const uploadTimeout = 2 * time.Minute

// GCS uploads to a Google Cloud Storage bucket.
type GCS struct {
	client     *storage.Client
	bucket     string
	publicBase string
	publicRead bool
	log        logger.Logger
}

func NewGCS(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	log = log.WithPrefix("gcs").With("bucket", cfg.Bucket)
	log.Info("object storage initialized", "publicBase", cfg.PublicBaseURL, "publicRead", cfg.PublicRead)
	return &GCS{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: cfg.PublicBaseURL,
		publicRead: cfg.PublicRead,
		log:        log,
	}, nil
}

func (g *GCS) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if g.publicRead {
		w.PredefinedACL = "publicRead"
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s to GCS: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer for %s: %w", objectPath, err)
	}
	g.log.Debug("uploaded", "object", objectPath, "contentType", contentType)
	return PublicURL(g.publicBase, g.bucket, objectPath), nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
