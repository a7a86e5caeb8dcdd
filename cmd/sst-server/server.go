package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sst/sst/internal/config"
	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/followup"
	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/domain/workflow"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/blobstore"
	"github.com/sst/sst/internal/platform/db"
	"github.com/sst/sst/internal/platform/kv"
	"github.com/sst/sst/internal/platform/middleware"
)

var clinicalAccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sst_clinical_access_total",
	Help: "Responses that disclosed EMO clinical fields, by document kind.",
}, []string{"kind"})

// devIdentity is used for requests without X-Dev-* headers in development.
var devIdentity = auth.Identity{
	UserID:         "dev-user",
	Roles:          []string{string(access.RoleSafetyEngineer)},
	OrganizationID: "dev-org",
}

// app holds the opened backends. close releases them in reverse order.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	repo    safety.Repository
	blobs   blobstore.Store
	signer  *blobstore.URLSigner
	gc      *kv.GCRunner
	checks  map[string]db.Check
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openApp connects the document store and blob store selected by cfg.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, checks: map[string]db.Check{}}
	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openBlobs(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.repo = safety.NewPGRepository(pool)
		a.checks["database"] = db.PoolCheck(pool)
		a.logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	case config.StoreBadger:
		kcfg := kv.DefaultConfig(cfg.BadgerPath)
		kcfg.Logger = &a.logger
		bdb, err := kv.Open(kcfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			if err := bdb.Close(); err != nil {
				a.logger.Error().Err(err).Msg("close badger")
			}
		})
		gc, err := kv.NewGCRunner(bdb, kcfg.GCInterval, kcfg.GCDiscardRatio, a.logger)
		if err != nil {
			return err
		}
		a.gc = gc
		a.repo = safety.NewBadgerRepository(bdb)
		a.checks["badger"] = kv.Check(bdb)
		a.logger.Info().Str("path", cfg.BadgerPath).Msg("opened badger store")

	default:
		a.repo = safety.NewMemoryRepository()
		a.logger.Warn().Msg("using in-memory document store, data is lost on restart")
	}
	return nil
}

func (a *app) openBlobs(ctx context.Context) error {
	cfg := a.cfg
	if cfg.BlobDriver == config.BlobGCS {
		store, err := blobstore.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return fmt.Errorf("open gcs bucket: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.blobs = store
		a.logger.Info().Str("bucket", cfg.GCSBucket).Msg("using gcs blob store")
		return nil
	}

	secret := []byte(cfg.BlobURLSecret)
	if len(secret) == 0 {
		s, err := randomSecret()
		if err != nil {
			return err
		}
		secret = s
		a.logger.Warn().Msg("BLOB_URL_SECRET not set, generated an ephemeral signing secret")
	}
	a.signer = blobstore.NewURLSigner(secret, strings.TrimRight(cfg.PublicURL, "/")+"/api/v1/blobs")
	a.blobs = blobstore.NewMemoryStore(a.signer)
	return nil
}

func randomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate blob url secret: %w", err)
	}
	return []byte(hex.EncodeToString(b)), nil
}

// riskEngine loads RISK_MATRIX_FILE, or the built-in matrix when unset.
func riskEngine(cfg *config.Config) (*risk.Engine, error) {
	if cfg.RiskMatrixFile == "" {
		return risk.DefaultEngine(), nil
	}
	m, err := risk.LoadMatrix(cfg.RiskMatrixFile)
	if err != nil {
		return nil, err
	}
	return risk.NewEngine(m)
}

// newService builds the document service and registers the follow-up
// tracker as an advisor.
func newService(a *app, scorer *risk.Engine) (*workflow.Service, *followup.Tracker) {
	engine := workflow.NewEngine(scorer, workflow.Options{
		MaxReopens:    a.cfg.TrainingMaxReopens,
		ExpiryWarning: a.cfg.ExamExpiryWarning(),
	})
	svc := workflow.NewService(a.repo, engine, a.blobs)
	if a.cfg.BlobURLTTL > 0 {
		svc.SetURLTTL(a.cfg.BlobURLTTL)
	}
	tracker := followup.NewTracker(a.repo)
	svc.AddAdvisor(tracker)
	return svc, tracker
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthDevelopment {
		return auth.DevAuthMiddleware(devIdentity)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

func clinicalRecorder() middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		if entry.Clinical() {
			clinicalAccessTotal.WithLabelValues(entry.DocumentKind).Inc()
		}
		return nil
	})
}

// newServer assembles the HTTP surface.
func newServer(a *app, scorer *risk.Engine) *echo.Echo {
	cfg, logger := a.cfg, a.logger
	svc, tracker := newService(a, scorer)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{
			"Authorization", "Content-Type", "If-Match", "X-Request-ID",
			auth.DevUserHeader, auth.DevRolesHeader, auth.DevOrganizationHeader,
		},
		ExposeHeaders: []string{"ETag"},
	}))
	e.Use(middleware.BodyLimit("1M", "25M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", db.HealthHandler(a.checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger, clinicalRecorder()))
	apiV1.Use(authMiddleware(cfg))

	if a.signer != nil {
		blobstore.NewHandler(a.blobs, a.signer).RegisterRoutes(apiV1)
	}
	workflow.NewHandler(svc).RegisterRoutes(apiV1)
	followup.NewHandler(tracker).RegisterRoutes(apiV1)
	risk.NewHandler(scorer).RegisterRoutes(apiV1)
	access.NewHandler().RegisterRoutes(apiV1)

	return e
}
