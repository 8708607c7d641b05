package domain

import (
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the classifier looks at.
type Page struct {
	StatusCode int
	Body       string
}

// Classification is the verdict for one page plus any extracted profile.
type Classification struct {
	Verdict Verdict
	Reason  string
	Profile *Profile
}

// Classify maps a fetched page to a verdict. Rules are evaluated in order and
// the first match wins; the function is pure.
func Classify(page Page, username string, site Site) Classification {
	switch {
	case page.StatusCode == http.StatusNotFound:
		return Classification{Verdict: VerdictNotFound, Reason: "Profile not found"}
	case page.StatusCode == http.StatusForbidden:
		return Classification{Verdict: VerdictBlocked, Reason: "Access forbidden"}
	case page.StatusCode == http.StatusTooManyRequests:
		return Classification{Verdict: VerdictRateLimited, Reason: "Rate limited"}
	case page.StatusCode >= http.StatusInternalServerError:
		return Classification{Verdict: VerdictServerError, Reason: "Server error"}
	case isRedirect(page.StatusCode) && !site.AllowRedirect:
		return Classification{Verdict: VerdictRedirect, Reason: "Redirected"}
	}

	body := strings.ToLower(page.Body)
	if containsAny(body, site.NegativeKeywords) {
		return Classification{Verdict: VerdictNotFound, Reason: "Site negative signal"}
	}

	ok := page.StatusCode == http.StatusOK
	hasUser := strings.Contains(body, strings.ToLower(username))
	hasPositive := containsAny(body, site.PositiveKeywords)

	switch {
	case ok && hasPositive && hasUser:
		return Classification{Verdict: VerdictFound, Reason: "Positive keyword and username", Profile: ExtractProfile(page.Body)}
	case ok && hasUser:
		return Classification{Verdict: VerdictFound, Reason: "Username present", Profile: ExtractProfile(page.Body)}
	case ok && hasPositive:
		return Classification{Verdict: VerdictUnknown, Reason: "Positive keyword only"}
	default:
		return Classification{Verdict: VerdictUnknown, Reason: "Unable to confirm"}
	}
}

func isRedirect(status int) bool {
	return status == http.StatusMovedPermanently || status == http.StatusFound
}

// containsAny expects a lower-cased haystack.
func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
