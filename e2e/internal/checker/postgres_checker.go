package checker

import (
	"context"
	"fmt"

	"github.com/saaga0h/energy-twins/pkg/postgres"
)

// QueryScalar runs a query expected to return a single value
func QueryScalar(ctx context.Context, client postgres.Client, query string) (interface{}, error) {
	rows, err := client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return nil, fmt.Errorf("query returned no rows")
	}

	var value interface{}
	if err := rows.Scan(&value); err != nil {
		return nil, fmt.Errorf("failed to scan result: %w", err)
	}
	return value, rows.Err()
}

// CheckPostgresQuery matches a scalar query result against expected
func CheckPostgresQuery(ctx context.Context, client postgres.Client, query string, expected interface{}) (bool, string, interface{}) {
	value, err := QueryScalar(ctx, client, query)
	if err != nil {
		return false, err.Error(), nil
	}
	ok, reason := MatchesExpectation(value, expected)
	return ok, reason, value
}
