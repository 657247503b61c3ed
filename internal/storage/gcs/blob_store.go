// Package gcs stores job artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// Config names the bucket and the headers applied to uploads.
type Config struct {
	Bucket       string
	CacheControl string
}

// BlobStore implements crawler.BlobStore on one bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	name   string
	cfg    Config
}

// New returns a store over cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	switch {
	case client == nil:
		return nil, errors.New("storage client is required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket, cfg: cfg}, nil
}

// PutObject uploads r as objectPath and returns its gs:// URI. Documents and
// archives are marked as attachments so browsers download them by name.
func (s *BlobStore) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	name, err := objectName(objectPath)
	if err != nil {
		return "", err
	}
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = s.cfg.CacheControl
	w.ContentDisposition = disposition(name, contentType)

	if _, err := io.Copy(w, r); err != nil {
		if cerr := w.Close(); cerr != nil {
			return "", fmt.Errorf("upload %s: %w (close: %v)", name, err, cerr)
		}
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return URI(s.name, name), nil
}

// GetObject streams an uploaded artifact.
func (s *BlobStore) GetObject(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	name, err := objectName(objectPath)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", crawler.ErrObjectNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return rc, nil
}

// URI formats the gs:// location of an object.
func URI(bucket, objectPath string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(objectPath, "/")
}

func objectName(objectPath string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(objectPath), "/")
	if name == "" {
		return "", errors.New("path is required")
	}
	return name, nil
}

func disposition(name, contentType string) string {
	switch contentType {
	case "application/pdf", "application/zip":
		return mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)})
	default:
		return ""
	}
}
