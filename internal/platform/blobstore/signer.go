package blobstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for expired, tampered or malformed URL tokens.
var ErrInvalidToken = errors.New("invalid or expired blob token")

const tokenAudience = "sst-blob"

// URLSigner issues HS256 tokens that grant read access to one blob until they
// expire. The token is the last path segment of the URL.
type URLSigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewURLSigner signs with secret and builds URLs under baseURL, for example
// "http://localhost:8000/api/v1/blobs".
func NewURLSigner(secret []byte, baseURL string) *URLSigner {
	return &URLSigner{secret: secret, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

type blobClaims struct {
	jwt.RegisteredClaims
}

// Sign returns a URL for ref valid for ttl.
func (s *URLSigner) Sign(ref Ref, ttl time.Duration) (string, error) {
	now := s.now()
	claims := blobClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   string(ref),
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign blob url: %w", err)
	}
	return s.baseURL + "/" + url.PathEscape(token), nil
}

// Verify returns the ref a token grants access to.
func (s *URLSigner) Verify(token string) (Ref, error) {
	claims := &blobClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return Ref(claims.Subject), nil
}
