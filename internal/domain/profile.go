package domain

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// ExtractProfile scans social-preview meta tags (Open Graph first, then
// twitter cards) of a profile page. It never fails: anything unparsable
// yields nil.
func ExtractProfile(body string) (p *Profile) {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	// Malformed markup must degrade to "no metadata", never to a failed probe.
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()

	profile := &Profile{}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(body)); err == nil {
		profile.DisplayName = strings.TrimSpace(og.Title)
		profile.Bio = strings.TrimSpace(og.Description)
		for _, img := range og.Images {
			if img != nil && img.URL != "" {
				profile.Avatar = strings.TrimSpace(img.URL)
				break
			}
		}
	}

	if profile.DisplayName == "" || profile.Bio == "" || profile.Avatar == "" {
		fillFromMetaTags(body, profile)
	}

	if *profile == (Profile{}) {
		return nil
	}
	return profile
}

// fillFromMetaTags completes missing fields from twitter card tags, and from
// og tags declared with name= instead of property=.
func fillFromMetaTags(body string, profile *Profile) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return
	}

	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		for _, attr := range []string{"property", "name"} {
			if key, ok := s.Attr(attr); ok {
				key = strings.ToLower(strings.TrimSpace(key))
				if _, seen := meta[key]; !seen {
					meta[key] = strings.TrimSpace(content)
				}
			}
		}
	})

	if profile.DisplayName == "" {
		profile.DisplayName = firstOf(meta, "og:title", "twitter:title")
	}
	if profile.Bio == "" {
		profile.Bio = firstOf(meta, "og:description", "twitter:description")
	}
	if profile.Avatar == "" {
		profile.Avatar = firstOf(meta, "og:image", "twitter:image", "twitter:image:src")
	}
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := meta[k]; v != "" {
			return v
		}
	}
	return ""
}
