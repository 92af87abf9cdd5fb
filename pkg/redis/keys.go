package redis

import "fmt"

// Key construction helpers. Every key is scoped by the dataset fingerprint so
// a reload with different data never reads stale entries.

// BuildingDetailKey returns the key for a cached building detail (string, JSON)
// Pattern: twins:{fingerprint}:building:{id}
func BuildingDetailKey(fingerprint string, id int64) string {
	return fmt.Sprintf("twins:%s:building:%d", fingerprint, id)
}

// ZonePercentilesKey returns the key for a climate zone's sorted usages
// Pattern: twins:{fingerprint}:zone:{climate_zone}
func ZonePercentilesKey(fingerprint, zone string) string {
	return fmt.Sprintf("twins:%s:zone:%s", fingerprint, zone)
}

// MapSampleKey returns the key for a cached map sample of the given size
// Pattern: twins:{fingerprint}:map:{size}
func MapSampleKey(fingerprint string, size int) string {
	return fmt.Sprintf("twins:%s:map:%d", fingerprint, size)
}
