package catalog

// Entry is one site as written in the catalog file.
// allow_redirect is a pointer so an omitted key can be told apart from false.
type Entry struct {
	Name             string   `yaml:"name"`
	URL              string   `yaml:"url"`
	PositiveKeywords []string `yaml:"positive_keywords"`
	NegativeKeywords []string `yaml:"negative_keywords"`
	AllowRedirect    *bool    `yaml:"allow_redirect"`
}

// Category groups entries under the key they were declared with.
type Category struct {
	Name    string
	Entries []Entry
}

// Document is the decoded catalog, categories kept in file order.
// The file shape is: { "<category>": [ {name, url, ...}, ... ], ... }
type Document []Category
