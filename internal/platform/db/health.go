package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

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

// HealthHandler pings the database and reports pool statistics. The ping
// error is logged by the caller's middleware, not returned to clients.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := GetPoolStats(pool)
		if err := pool.Ping(ctx); err != nil {
			stats.Healthy = false
			c.Set("health_error", err.Error())
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}

// RegisterPoolMetrics exposes connection pool gauges on reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	gauges := []struct {
		name, help string
		value      func(*pgxpool.Stat) float64
	}{
		{"db_pool_total_connections", "Connections currently held by the pool", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
		{"db_pool_idle_connections", "Idle connections in the pool", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
		{"db_pool_acquired_connections", "Connections checked out of the pool", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
		{"db_pool_max_connections", "Configured pool size", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	}
	for _, g := range gauges {
		value := g.value
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "oncontrol",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return value(pool.Stat()) })
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
