package taxonomy

// Built-in taxonomy slugs.
const (
	Category = "category"
	Tag      = "tag"
)

// Taxonomy describes one registered classification system.
type Taxonomy struct {
	Slug         string `yaml:"slug" json:"slug"`
	QueryVar     string `yaml:"query_var" json:"queryVar"`
	Hierarchical bool   `yaml:"hierarchical" json:"hierarchical"`
}

// Registry enumerates the configured taxonomies.
type Registry interface {
	Taxonomies() []Taxonomy
}

// StaticRegistry is a fixed, ordered taxonomy list.
type StaticRegistry []Taxonomy

func (r StaticRegistry) Taxonomies() []Taxonomy { return r }

// DefaultTaxonomies returns the built-in category and tag taxonomies.
func DefaultTaxonomies() []Taxonomy {
	return []Taxonomy{
		{Slug: Category, QueryVar: "cn-category", Hierarchical: true},
		{Slug: Tag, QueryVar: "cn-tag", Hierarchical: false},
	}
}
