package domain

// Verdict is the classified outcome of a probe.
type Verdict string

const (
	VerdictFound        Verdict = "found"
	VerdictNotFound     Verdict = "not_found"
	VerdictBlocked      Verdict = "blocked"
	VerdictRateLimited  Verdict = "rate_limited"
	VerdictServerError  Verdict = "server_error"
	VerdictRedirect     Verdict = "redirect"
	VerdictTimeout      Verdict = "timeout"
	VerdictNetworkError Verdict = "network_error"
	VerdictUnknown      Verdict = "unknown"
	VerdictError        Verdict = "error"
)

// Verdicts lists every verdict, in declaration order.
var Verdicts = []Verdict{
	VerdictFound, VerdictNotFound, VerdictBlocked, VerdictRateLimited, VerdictServerError,
	VerdictRedirect, VerdictTimeout, VerdictNetworkError, VerdictUnknown, VerdictError,
}

// Profile holds metadata scraped from a found profile page.
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Result is the outcome of probing one site. One per site per search.
type Result struct {
	Site          string   `json:"site"`
	URL           string   `json:"url"`
	Verdict       Verdict  `json:"state"`
	StatusCode    int      `json:"status_code"` // 0 when no response was received
	ViaProxy      bool     `json:"via_proxy"`
	ProxyID       string   `json:"proxy_id,omitempty"`
	ProxyEndpoint string   `json:"proxy_url,omitempty"`
	LatencyMS     *float64 `json:"latency_ms,omitempty"`
	Reason        string   `json:"reason"`
	DisplayName   string   `json:"display_name,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
}

// Found reports whether the username was confirmed on the site.
func (r Result) Found() bool {
	return r.Verdict == VerdictFound
}

// Outcome aggregates every delivered Result of a search.
type Outcome struct {
	SearchID     string   `json:"search_id"`
	Query        string   `json:"query"`
	TotalChecked int      `json:"total_checked"`
	TotalFound   int      `json:"total_found"`
	Found        []Result `json:"found_profiles"`
	All          []Result `json:"all_results"`
}

// NewOutcome derives the counters and the found subset from results.
func NewOutcome(searchID, query string, results []Result) *Outcome {
	all := make([]Result, len(results))
	copy(all, results)

	found := make([]Result, 0)
	for _, r := range all {
		if r.Found() {
			found = append(found, r)
		}
	}

	return &Outcome{
		SearchID:     searchID,
		Query:        query,
		TotalChecked: len(all),
		TotalFound:   len(found),
		Found:        found,
		All:          all,
	}
}
