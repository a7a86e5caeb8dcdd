package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket and hands out V4
// signed URLs.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects with the service account key at credentialsFile, or
// application default credentials when it is empty.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) Put(ctx context.Context, meta Metadata, content io.Reader) (Ref, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return "", err
	}
	meta.Ref = objectName(meta)

	w := s.client.Bucket(s.bucket).Object(string(meta.Ref)).NewWriter(ctx)
	w.ContentType = meta.ContentType
	w.CacheControl = "private, no-store"
	w.Metadata = map[string]string{
		"file_name":       meta.FileName,
		"purpose":         string(meta.Purpose),
		"organizacion_id": meta.OrganizationID,
		"created_by":      meta.CreatedBy,
		"sha256":          meta.Hash,
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write GCS object %s: %w", meta.Ref, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer for %s: %w", meta.Ref, err)
	}
	return meta.Ref, nil
}

func (s *GCSStore) SignedURL(_ context.Context, ref Ref, ttl time.Duration) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(string(ref), &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign GCS object %s: %w", ref, err)
	}
	return u, nil
}

func (s *GCSStore) Open(ctx context.Context, ref Ref) (io.ReadCloser, *Metadata, error) {
	obj := s.client.Bucket(s.bucket).Object(string(ref))
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read GCS attrs %s: %w", ref, err)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open GCS object %s: %w", ref, err)
	}
	meta := &Metadata{
		Ref:            ref,
		FileName:       attrs.Metadata["file_name"],
		ContentType:    attrs.ContentType,
		Size:           attrs.Size,
		Hash:           attrs.Metadata["sha256"],
		Purpose:        Purpose(attrs.Metadata["purpose"]),
		OrganizationID: attrs.Metadata["organizacion_id"],
		CreatedBy:      attrs.Metadata["created_by"],
		CreatedAt:      attrs.Created,
	}
	return r, meta, nil
}
