package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	rootconfig "github.com/hostwell/paygate/config"
)

// ObservePoolMetrics registers observable gauges that report pgx pool health
// for the claim ledger: total, idle, acquired, and constructing connections.
func ObservePoolMetrics(pool *pgxpool.Pool, poolName string) {
	if pool == nil {
		return
	}
	normalized := strings.TrimSpace(poolName)
	if normalized == "" {
		normalized = "primary"
	}
	attrs := []attribute.KeyValue{
		attribute.String("environment", string(rootconfig.EnvironmentFromEnv())),
		attribute.String("db_pool", normalized),
	}

	meter := otel.Meter("postgres.pool")
	gauges := []struct {
		name        string
		description string
		observe     func(*pgxpool.Stat) int64
	}{
		{
			name:        "paygate_db_pool_connections_total",
			description: "Total connections (idle + acquired + constructing)",
			observe:     func(stat *pgxpool.Stat) int64 { return int64(stat.TotalConns()) },
		},
		{
			name:        "paygate_db_pool_connections_idle",
			description: "Idle connections ready for checkout",
			observe:     func(stat *pgxpool.Stat) int64 { return int64(stat.IdleConns()) },
		},
		{
			name:        "paygate_db_pool_connections_acquired",
			description: "Connections currently acquired by callers",
			observe:     func(stat *pgxpool.Stat) int64 { return int64(stat.AcquiredConns()) },
		},
		{
			name:        "paygate_db_pool_connections_constructing",
			description: "Connections currently being constructed",
			observe:     func(stat *pgxpool.Stat) int64 { return int64(stat.ConstructingConns()) },
		},
	}
	for _, gauge := range gauges {
		observe := gauge.observe
		if _, err := meter.Int64ObservableGauge(gauge.name,
			metric.WithDescription(gauge.description),
			metric.WithUnit("{connection}"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				observer.Observe(observe(pool.Stat()), metric.WithAttributes(attrs...))
				return nil
			}),
		); err != nil {
			return
		}
	}
}
