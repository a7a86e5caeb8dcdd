// Package blobstore stores signature images and exam result attachments.
// Documents only ever hold a Ref; content is served through short-lived
// signed URLs.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyContent       = errors.New("blob content is empty")
	ErrInvalidPurpose     = errors.New("blob purpose is not allowed")
)

// MaxFileSize is the maximum allowed blob size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// Purpose tags what a blob is attached to.
type Purpose string

const (
	PurposeSignature Purpose = "firma"
	PurposeResult    Purpose = "resultado"
)

// AllowedContentTypes lists the MIME types accepted per purpose.
var AllowedContentTypes = map[Purpose]map[string]bool{
	PurposeSignature: {
		"image/png":  true,
		"image/jpeg": true,
	},
	PurposeResult: {
		"application/pdf": true,
		"image/png":       true,
		"image/jpeg":      true,
	},
}

// Ref identifies a stored blob.
type Ref string

// Metadata describes a stored blob.
type Metadata struct {
	Ref            Ref       `json:"ref"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	Hash           string    `json:"hash"`
	Purpose        Purpose   `json:"purpose"`
	OrganizationID string    `json:"organizacion_id"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the blob storage boundary used by the workflow.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (Ref, error)
	SignedURL(ctx context.Context, ref Ref, ttl time.Duration) (string, error)
	Open(ctx context.Context, ref Ref) (io.ReadCloser, *Metadata, error)
}

// readContent enforces the size and type limits shared by every store and
// fills in size and hash.
func readContent(meta *Metadata, content io.Reader) ([]byte, error) {
	allowed, ok := AllowedContentTypes[meta.Purpose]
	if !ok {
		return nil, ErrInvalidPurpose
	}
	if !allowed[meta.ContentType] {
		return nil, ErrInvalidContentType
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	h := sha256.Sum256(data)
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	return data, nil
}

func objectName(meta Metadata) Ref {
	return Ref(fmt.Sprintf("%s/%s/%s", meta.OrganizationID, meta.Purpose, uuid.New()))
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store for tests and development.
// Its signed URLs point at the blob Handler.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[Ref]*storedBlob
	signer *URLSigner
}

func NewMemoryStore(signer *URLSigner) *MemoryStore {
	return &MemoryStore{blobs: make(map[Ref]*storedBlob), signer: signer}
}

func (s *MemoryStore) Put(ctx context.Context, meta Metadata, content io.Reader) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := readContent(&meta, content)
	if err != nil {
		return "", err
	}
	meta.Ref = objectName(meta)
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.blobs[meta.Ref] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()
	return meta.Ref, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, ref Ref, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBlobNotFound
	}
	return s.signer.Sign(ref, ttl)
}

func (s *MemoryStore) Open(_ context.Context, ref Ref) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}
