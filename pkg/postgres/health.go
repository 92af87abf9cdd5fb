package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// HealthStatus represents the health of the Postgres connection
type HealthStatus struct {
	Connected bool      `json:"connected"`
	Database  string    `json:"database"`
	Table     string    `json:"table,omitempty"`
	Rows      int64     `json:"rows"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck pings the database and counts the rows of table. A failed count
// leaves Connected true and records the error.
func (c *PostgresClient) HealthCheck(ctx context.Context, table string) (*HealthStatus, error) {
	status := &HealthStatus{
		Database:  c.config.PostgresDB,
		Table:     table,
		Timestamp: time.Now(),
	}

	if c.db == nil {
		status.Error = "not connected"
		return status, nil
	}

	if err := c.db.PingContext(ctx); err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status, nil
	}
	status.Connected = true

	if table == "" {
		return status, nil
	}
	rows, err := c.Count(ctx, "SELECT count(*) FROM "+pq.QuoteIdentifier(table))
	if err != nil {
		status.Error = fmt.Sprintf("failed to count %s: %v", table, err)
	}
	status.Rows = rows
	return status, nil
}
