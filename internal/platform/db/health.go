package db

import (
	"context"
	"database/sql"
	"net/http"
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

// GetPoolStats returns pgx pool statistics.
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

// GetSQLStats maps database/sql pool statistics onto PoolStats.
func GetSQLStats(sqlDB *sql.DB) *PoolStats {
	return statsFromSQL(sqlDB.Stats())
}

func statsFromSQL(s sql.DBStats) *PoolStats {
	return &PoolStats{
		TotalConns:      int32(s.OpenConnections),
		IdleConns:       int32(s.Idle),
		AcquiredConns:   int32(s.InUse),
		MaxConns:        int32(s.MaxOpenConnections),
		AcquireCount:    s.WaitCount,
		AcquireDuration: s.WaitDuration.String(),
		Healthy:         s.OpenConnections > 0,
	}
}

// HealthChecker is what the health endpoint needs from a database backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

// HealthHandler returns a handler for the liveness endpoint. The process is
// alive whenever it answers; the database flag reports connectivity.
func HealthHandler(checker HealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := checker.Ping(ctx)
		stats := checker.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "unhealthy",
				"message":   "Server is running",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"database":  "Disconnected",
				"error":     err.Error(),
				"pool":      stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "OK",
			"message":   "Server is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"database":  "Connected",
			"pool":      stats,
		})
	}
}

// Prober runs the database round-trip query.
type Prober interface {
	RoundTrip(ctx context.Context) (*RoundTrip, error)
}

// TestHandler returns a handler that proves the backend can reach the
// database.
func TestHandler(p Prober) echo.HandlerFunc {
	return func(c echo.Context) error {
		rt, err := p.RoundTrip(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "Backend and database are working!",
			"dbTest":    rt,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
