package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check probes one backing component. It returns optional details to be
// reported alongside the status.
type Check func(ctx context.Context) (details any, err error)

// PoolCheck pings pool and reports its statistics.
func PoolCheck(pool *pgxpool.Pool) Check {
	return func(ctx context.Context) (any, error) {
		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		if err != nil {
			stats.Healthy = false
		}
		return stats, err
	}
}

type componentStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// HealthHandler runs every check with a shared timeout. Any failing check
// turns the response into 503.
func HealthHandler(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		overall := "healthy"
		components := make(map[string]componentStatus, len(checks))
		for _, name := range names {
			details, err := checks[name](ctx)
			cs := componentStatus{Status: "healthy", Details: details}
			if err != nil {
				cs.Status = "unhealthy"
				cs.Error = err.Error()
				status = http.StatusServiceUnavailable
				overall = "unhealthy"
			}
			components[name] = cs
		}

		return c.JSON(status, map[string]interface{}{
			"status":     overall,
			"components": components,
		})
	}
}
