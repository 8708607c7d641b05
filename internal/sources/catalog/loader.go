// Package catalog loads the site catalog from a JSON or YAML file.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptyCatalog is returned when a catalog yields no usable site.
var ErrEmptyCatalog = errors.New("catalog: no valid sites")

// Loader reads a catalog file. JSON is accepted since it is valid YAML.
type Loader struct {
	filePath string
}

// NewLoader creates a new catalog loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and decodes the catalog file.
func (l *Loader) Load() (Document, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog document. Category order follows the mapping key
// order, which a plain map would lose.
func Parse(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse catalog: top level must be a mapping of categories, got line %d", top.Line)
	}

	doc := make(Document, 0, len(top.Content)/2)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i], top.Content[i+1]

		var entries []Entry
		if err := value.Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to parse category %q: %w", key.Value, err)
		}
		doc = append(doc, Category{Name: key.Value, Entries: entries})
	}

	return doc, nil
}
