package proxypool

import "time"

// Snapshot is a read-only view of the pool for diagnostics.
type Snapshot struct {
	Enabled             bool            `json:"enabled"`
	Count               int             `json:"count"`
	Rotation            Rotation        `json:"rotation"`
	CooldownSeconds     float64         `json:"cooldown_seconds"`
	AllowDirectFallback bool            `json:"allow_direct_fallback"`
	AutoFetch           bool            `json:"auto_fetch"`
	Proxies             []RecordSummary `json:"proxies"`
}

// RecordSummary describes one record. Healthy is computed, not stored.
type RecordSummary struct {
	ID          string     `json:"id"`
	Endpoint    string     `json:"url"`
	Healthy     bool       `json:"healthy"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	Successes   uint64     `json:"success_count"`
	Failures    uint64     `json:"failure_count"`
}

// Snapshot reports the pool state without mutating it.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	s := Snapshot{
		Enabled:             p.enabled,
		Count:               len(p.records),
		Rotation:            p.rotation,
		CooldownSeconds:     p.cooldown.Seconds(),
		AllowDirectFallback: p.fallback,
		AutoFetch:           p.autoFill,
		Proxies:             make([]RecordSummary, 0, len(p.records)),
	}
	for _, r := range p.records {
		sum := RecordSummary{
			ID:        r.ID,
			Endpoint:  r.Endpoint,
			Healthy:   r.healthyAt(now, p.cooldown),
			Successes: r.Successes,
			Failures:  r.Failures,
		}
		if !r.LastFailure.IsZero() {
			t := r.LastFailure
			sum.LastFailure = &t
		}
		s.Proxies = append(s.Proxies, sum)
	}
	return s
}
