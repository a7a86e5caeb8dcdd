// Package kv opens the embedded BadgerDB store used when STORE_DRIVER=badger
// and runs its value-log garbage collection.
package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Intended for tests.
	InMemory bool

	SyncWrites bool

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal logs. Nil silences them.
	Logger *zerolog.Logger
}

// DefaultConfig returns durable defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a non-durable configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Open opens the database described by cfg, creating its directory if needed.
// The caller owns the returned handle and must Close it.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger.With().Str("component", "badger").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// GCRunner triggers value-log garbage collection on a fixed interval.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   zerolog.Logger
}

func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger zerolog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, errors.New("ratio must be between 0 and 1")
	}
	return &GCRunner{db: db, interval: interval, ratio: ratio, logger: logger}, nil
}

// Run blocks until ctx is cancelled. It always returns nil so it can sit in
// an errgroup next to the HTTP server without tearing it down.
func (r *GCRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *GCRunner) collect() {
	// ErrNoRewrite only means there was nothing worth collecting.
	for {
		err := r.db.RunValueLogGC(r.ratio)
		if err == nil {
			r.logger.Debug().Msg("badger value log rewritten")
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			r.logger.Warn().Err(err).Msg("badger value log gc failed")
		}
		return
	}
}

// Check reports whether the database still accepts reads.
func Check(db *badger.DB) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if db.IsClosed() {
			return nil, errors.New("badger database is closed")
		}
		lsm, vlog := db.Size()
		return map[string]int64{"lsm_bytes": lsm, "vlog_bytes": vlog}, db.View(func(*badger.Txn) error { return nil })
	}
}
