package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func rsaPublicKeyToJWK(key *rsa.PrivateKey, kid string) JWKSKey {
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{rsaPublicKeyToJWK(key, kid)}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverJWKSURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/openid-configuration" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"issuer":   "https://idp.example.com",
				"jwks_uri": "https://idp.example.com/keys",
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	url, err := DiscoverJWKSURL(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://idp.example.com/keys" {
		t.Errorf("unexpected jwks url %s", url)
	}
}

func TestDiscoverJWKSURL_Failures(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	if _, err := DiscoverJWKSURL(context.Background(), notFound.URL); err == nil {
		t.Error("expected error for 404 discovery endpoint")
	}

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
	}))
	defer missing.Close()
	if _, err := DiscoverJWKSURL(context.Background(), missing.URL); err == nil {
		t.Error("expected error for missing jwks_uri")
	}

	if _, err := DiscoverJWKSURL(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Error("expected error for unreachable issuer")
	}
}

func TestJWKSCache_KeyAndCaching(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	var hits int32
	srv := newJWKSServer(t, privateKey, "k1", &hits)

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	key, err := cache.Key(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 || key.E != privateKey.PublicKey.E {
		t.Error("fetched key does not match original")
	}
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected one fetch, got %d", hits)
	}

	if _, err := cache.Key(context.Background(), "unknown"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestJWTMiddleware_RS256ViaJWKS(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	srv := newJWKSServer(t, privateKey, "rs-key", nil)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = "rs-key"
	tokenStr, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var got Identity
	err = runJWT(t, JWTConfig{JWKSURL: srv.URL}, "Bearer "+tokenStr, func(c echo.Context) error {
		got, _ = IdentityFromContext(c.Request().Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "user-456" {
		t.Errorf("unexpected identity %+v", got)
	}
}
