package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const testBase = "http://localhost/api/v1/blobs"

func newTestStore() (*MemoryStore, *URLSigner) {
	signer := NewURLSigner([]byte("test-secret"), testBase)
	return NewMemoryStore(signer), signer
}

func signatureMeta() Metadata {
	return Metadata{
		FileName:       "firma.png",
		ContentType:    "image/png",
		Purpose:        PurposeSignature,
		OrganizationID: "org-1",
		CreatedBy:      "user-1",
	}
}

func tokenOf(t *testing.T, u string) string {
	t.Helper()
	if !strings.HasPrefix(u, testBase+"/") {
		t.Fatalf("unexpected url %q", u)
	}
	return strings.TrimPrefix(u, testBase+"/")
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestMemoryStore_PutOpen(t *testing.T) {
	store, _ := newTestStore()
	content := "png-bytes"

	ref, err := store.Put(context.Background(), signatureMeta(), strings.NewReader(content))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(string(ref), "org-1/firma/") {
		t.Errorf("expected ref scoped by organization and purpose, got %q", ref)
	}

	rc, meta, err := store.Open(context.Background(), ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("expected content %q, got %q", content, data)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), meta.Size)
	}
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte(content))); meta.Hash != want {
		t.Errorf("expected hash %s, got %s", want, meta.Hash)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestMemoryStore_PutRejects(t *testing.T) {
	store, _ := newTestStore()

	tests := []struct {
		name    string
		mutate  func(*Metadata)
		content string
		want    error
	}{
		{"pdf signature", func(m *Metadata) { m.ContentType = "application/pdf" }, "x", ErrInvalidContentType},
		{"unknown purpose", func(m *Metadata) { m.Purpose = "otro" }, "x", ErrInvalidPurpose},
		{"empty", func(m *Metadata) {}, "", ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := signatureMeta()
			tt.mutate(&meta)
			_, err := store.Put(context.Background(), meta, strings.NewReader(tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMemoryStore_PutResultPDF(t *testing.T) {
	store, _ := newTestStore()
	meta := signatureMeta()
	meta.Purpose = PurposeResult
	meta.ContentType = "application/pdf"
	if _, err := store.Put(context.Background(), meta, strings.NewReader("%PDF-1.7")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestMemoryStore_TooLarge(t *testing.T) {
	store, _ := newTestStore()
	big := strings.NewReader(strings.Repeat("a", MaxFileSize+1))
	_, err := store.Put(context.Background(), signatureMeta(), big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, signatureMeta(), strings.NewReader("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMemoryStore_OpenNotFound(t *testing.T) {
	store, _ := newTestStore()
	if _, _, err := store.Open(context.Background(), "org-1/firma/missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if _, err := store.SignedURL(context.Background(), "org-1/firma/missing", time.Minute); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestMemoryStore_ConcurrentPut(t *testing.T) {
	store, _ := newTestStore()
	var wg sync.WaitGroup
	refs := make(chan Ref, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := store.Put(context.Background(), signatureMeta(), strings.NewReader("x"))
			if err != nil {
				t.Errorf("Put: %v", err)
				return
			}
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := map[Ref]bool{}
	for r := range refs {
		seen[r] = true
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 distinct refs, got %d", len(seen))
	}
}

// ---------------------------------------------------------------------------
// Signer tests
// ---------------------------------------------------------------------------

func TestURLSigner_RoundTrip(t *testing.T) {
	signer := NewURLSigner([]byte("k"), testBase+"/")
	u, err := signer.Sign("org-1/firma/abc", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ref, err := signer.Verify(tokenOf(t, u))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ref != "org-1/firma/abc" {
		t.Errorf("expected ref back, got %q", ref)
	}
}

func TestURLSigner_Expired(t *testing.T) {
	signer := NewURLSigner([]byte("k"), testBase)
	u, err := signer.Sign("org-1/firma/abc", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := signer.Verify(tokenOf(t, u)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestURLSigner_WrongSecret(t *testing.T) {
	u, _ := NewURLSigner([]byte("a"), testBase).Sign("r", time.Minute)
	if _, err := NewURLSigner([]byte("b"), testBase).Verify(tokenOf(t, u)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_Download(t *testing.T) {
	store, signer := newTestStore()
	ref, err := store.Put(context.Background(), signatureMeta(), strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	u, err := store.SignedURL(context.Background(), ref, time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}

	e := echo.New()
	NewHandler(store, signer).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/"+tokenOf(t, u), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
}

func TestHandler_BadToken(t *testing.T) {
	store, signer := newTestStore()
	e := echo.New()
	NewHandler(store, signer).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/not-a-token", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_MissingBlob(t *testing.T) {
	store, signer := newTestStore()
	u, _ := signer.Sign("org-1/firma/gone", time.Minute)

	e := echo.New()
	NewHandler(store, signer).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/"+tokenOf(t, u), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
