// Package gcs provides an object store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	gcsstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/registry-crawler/internal/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string
}

// BlobStore writes objects to a configured GCS bucket.
type BlobStore struct {
	client *gcsstorage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed object store.
func New(client *gcsstorage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Create returns a writer that uploads to the object for key. GCS only
// finalizes the object on Close; Abort cancels the upload.
func (s *BlobStore) Create(ctx context.Context, key string) (storage.ObjectWriter, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(uploadCtx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		writer.ContentType = ct
	}
	return &objectWriter{w: writer, cancel: cancel}, nil
}

type objectWriter struct {
	w      *gcsstorage.Writer
	cancel context.CancelFunc
	done   bool
}

func (o *objectWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *objectWriter) Close() error {
	if o.done {
		return nil
	}
	o.done = true
	defer o.cancel()
	return o.w.Close()
}

func (o *objectWriter) Abort() error {
	if o.done {
		return nil
	}
	o.done = true
	o.cancel()
	// The cancelled upload reports context.Canceled; nothing was committed.
	_ = o.w.Close()
	return nil
}

// Size looks up the object's attributes.
func (s *BlobStore) Size(ctx context.Context, key string) (int64, bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return 0, false, err
	}
	attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, gcsstorage.ErrObjectNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("object attrs: %w", err)
	}
	return attrs.Size, true, nil
}

// URI returns a gs:// URI for key.
func (s *BlobStore) URI(key string) string {
	name, err := s.objectName(key)
	if err != nil {
		name = key
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}

func (s *BlobStore) objectName(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if strings.TrimSpace(key) == "" {
		return "", errors.New("path is required")
	}
	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}
