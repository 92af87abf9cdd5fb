package checker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CountRedisKeys returns how many keys match pattern. Cache keys embed the
// dataset fingerprint, so patterns use a wildcard for it.
func CountRedisKeys(ctx context.Context, client *redis.Client, pattern string) (int, error) {
	count := 0
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan redis keys: %w", err)
	}
	return count, nil
}

// CheckRedisKeys matches the number of keys under pattern against expected
func CheckRedisKeys(ctx context.Context, client *redis.Client, pattern string, expected interface{}) (bool, string, interface{}) {
	count, err := CountRedisKeys(ctx, client, pattern)
	if err != nil {
		return false, err.Error(), nil
	}
	ok, reason := MatchesExpectation(count, expected)
	return ok, reason, count
}
