package domain

import (
	"net/url"
	"strings"
)

// placeholders accepted in catalog URL templates, checked in order.
var placeholders = []string{"{handle}", "{username}", "{user}", "{}"}

// Site describes one platform of the catalog. Values are validated and
// normalized once by the catalog loader and shared read-only afterwards.
type Site struct {
	Name             string   `json:"name"`
	URLTemplate      string   `json:"url"`
	Category         string   `json:"category,omitempty"`
	PositiveKeywords []string `json:"positive_keywords,omitempty"` // lower-cased
	NegativeKeywords []string `json:"negative_keywords,omitempty"` // lower-cased
	AllowRedirect    bool     `json:"allow_redirect"`
}

// ProfileURL resolves the template for username.
func (s Site) ProfileURL(username string) string {
	escaped := url.PathEscape(username)
	for _, p := range placeholders {
		if strings.Contains(s.URLTemplate, p) {
			return strings.ReplaceAll(s.URLTemplate, p, escaped)
		}
	}
	return s.URLTemplate
}
