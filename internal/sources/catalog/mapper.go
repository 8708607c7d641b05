package catalog

import (
	"strings"

	"github.com/MrSnakeDoc/sleuth/internal/domain"
)

// Mapper converts a catalog Document to domain sites
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapSites validates entries and returns sites in catalog order.
// Entries without a name or url are skipped. Positive keywords default to the
// lower-cased site name, and redirects are tolerated unless disabled.
func (m *Mapper) MapSites(doc Document) ([]domain.Site, error) {
	var sites []domain.Site

	for _, category := range doc {
		for _, entry := range category.Entries {
			name := strings.TrimSpace(entry.Name)
			url := strings.TrimSpace(entry.URL)
			if name == "" || url == "" {
				continue
			}

			positive := normalizeKeywords(entry.PositiveKeywords)
			if len(positive) == 0 {
				positive = []string{strings.ToLower(name)}
			}

			allowRedirect := true
			if entry.AllowRedirect != nil {
				allowRedirect = *entry.AllowRedirect
			}

			sites = append(sites, domain.Site{
				Name:             name,
				URLTemplate:      url,
				Category:         category.Name,
				PositiveKeywords: positive,
				NegativeKeywords: normalizeKeywords(entry.NegativeKeywords),
				AllowRedirect:    allowRedirect,
			})
		}
	}

	if len(sites) == 0 {
		return nil, ErrEmptyCatalog
	}

	return sites, nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// LoadSites reads the file at path and maps it in one go.
func LoadSites(path string) ([]domain.Site, error) {
	doc, err := NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	return NewMapper().MapSites(doc)
}
