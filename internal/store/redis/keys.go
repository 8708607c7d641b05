package redis

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixCandidates is the prefix for cached proxy candidate lists
	KeyPrefixCandidates = "sleuth:proxy:candidates:"
	// KeyPrefixEgress is the prefix for cached egress IP lookups
	KeyPrefixEgress = "sleuth:egress:"
)

// CandidatesKey returns the Redis key for the candidate list of a source.
// The source is usually the list URL; it is lower-cased so equivalent spellings share a key.
func CandidatesKey(source string) string {
	return KeyPrefixCandidates + strings.ToLower(source)
}

// EgressKey returns the Redis key for an egress IP lookup through route
// ("direct" or a proxy endpoint).
func EgressKey(route string) string {
	return KeyPrefixEgress + route
}

// ExtractSource extracts the source from a candidates key
func ExtractSource(key string) (string, error) {
	if !strings.HasPrefix(key, KeyPrefixCandidates) || len(key) == len(KeyPrefixCandidates) {
		return "", fmt.Errorf("invalid candidates key: %s", key)
	}
	return key[len(KeyPrefixCandidates):], nil
}
