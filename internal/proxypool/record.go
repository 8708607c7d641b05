package proxypool

import (
	"fmt"
	"strings"
	"time"
)

// Rotation selects how Select walks the healthy subset.
type Rotation string

const (
	RotationRoundRobin    Rotation = "round_robin"
	RotationRandomHealthy Rotation = "random_healthy"
)

// ParseRotation accepts the two supported policy names.
func ParseRotation(s string) (Rotation, error) {
	switch Rotation(strings.ToLower(strings.TrimSpace(s))) {
	case "", RotationRoundRobin:
		return RotationRoundRobin, nil
	case RotationRandomHealthy:
		return RotationRandomHealthy, nil
	default:
		return "", fmt.Errorf("unknown proxy rotation %q (want round_robin or random_healthy)", s)
	}
}

// Record is one proxy endpoint and its health counters.
type Record struct {
	ID          string
	Endpoint    string
	LastFailure time.Time
	Successes   uint64
	Failures    uint64
}

// healthyAt reports whether the cooldown since the last failure has elapsed.
func (r *Record) healthyAt(now time.Time, cooldown time.Duration) bool {
	return r.LastFailure.IsZero() || now.Sub(r.LastFailure) >= cooldown
}

// NormalizeEndpoint adds the http scheme to bare host:port endpoints.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "http://" + endpoint
}

// seedRecords numbers records after *seq and advances it, so ids are never
// handed out twice by the same pool.
func seedRecords(endpoints []string, seq *uint64) []*Record {
	records := make([]*Record, 0, len(endpoints))
	for _, e := range endpoints {
		e = NormalizeEndpoint(e)
		if e == "" {
			continue
		}
		*seq++
		records = append(records, &Record{
			ID:       fmt.Sprintf("proxy-%d", *seq),
			Endpoint: e,
		})
	}
	return records
}
