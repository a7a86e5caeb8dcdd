package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller. It is trusted input for the core.
type Identity struct {
	UserID         string   `json:"user_id"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organizacion_id"`
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Claims are the JWT claims accepted by the API.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"organizacion_id"`
	Roles          []string `json:"roles"`
}

// Identity converts validated claims into an Identity.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Roles: c.Roles, OrganizationID: c.OrganizationID}
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
	// Skipper bypasses authentication for matching requests.
	Skipper func(echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	// Without an explicit JWKS URL, fall back to OIDC discovery on the issuer.
	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" && len(cfg.SigningKey) == 0 {
		if discovered, err := DiscoverJWKSURL(context.Background(), cfg.Issuer); err == nil {
			jwksURL = discovered
		}
	}

	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		keyFunc = NewJWKSCache(jwksURL, defaultJWKSCacheTTL).KeyFunc()
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" || claims.OrganizationID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token lacks subject or organization")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), claims.Identity())))
			return next(c)
		}
	}
}

// Headers honoured by DevAuthMiddleware.
const (
	DevUserHeader         = "X-Dev-User"
	DevRolesHeader        = "X-Dev-Roles"
	DevOrganizationHeader = "X-Dev-Organization"
)

// DevAuthMiddleware is a permissive middleware for development. Every request
// gets the fallback identity unless the X-Dev-* headers override it.
func DevAuthMiddleware(fallback Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := fallback
			h := c.Request().Header
			if v := h.Get(DevUserHeader); v != "" {
				id.UserID = v
			}
			if v := h.Get(DevOrganizationHeader); v != "" {
				id.OrganizationID = v
			}
			if v := h.Get(DevRolesHeader); v != "" {
				id.Roles = nil
				for _, r := range strings.Split(v, ",") {
					if r = strings.TrimSpace(r); r != "" {
						id.Roles = append(id.Roles, r)
					}
				}
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// RequireIdentity extracts the caller or fails with 401.
func RequireIdentity(c echo.Context) (Identity, error) {
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}
