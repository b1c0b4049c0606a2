package postgres

import (
	"context"
	"fmt"
)

// HealthCheck implements ports.HealthChecker for PostgreSQL.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping confirms the ledger schema is reachable, not just the server.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var n int64
	if err := h.pool.QueryRow(ctx, "SELECT COUNT(*) FROM (SELECT 1 FROM accounts LIMIT 1) probe").Scan(&n); err != nil {
		return fmt.Errorf("postgres probe: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
