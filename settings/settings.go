// Package settings loads the directory options that change query semantics:
// searchable fields, full-text switches, visibility override policy,
// registered taxonomies and date event types.
package settings

import (
	"fmt"
	"os"

	"github.com/atomicbase/directory/taxonomy"
	"gopkg.in/yaml.v3"
)

// Search holds the search options.
type Search struct {
	Fields   []string `yaml:"fields"`
	FullText bool     `yaml:"fulltext_enabled"`
	Keyword  bool     `yaml:"keyword_enabled"`
}

// Settings is the parsed settings file.
type Settings struct {
	Search               Search              `yaml:"search"`
	LoginRequired        bool                `yaml:"login_required"`
	AllowPublicOverride  bool                `yaml:"allow_public_override"`
	AllowPrivateOverride bool                `yaml:"allow_private_override"`
	DateTypes            []string            `yaml:"date_types"`
	Taxonomies           []taxonomy.Taxonomy `yaml:"taxonomies"`
	// Roles maps a role name to the capabilities it grants. Missing roles
	// fall back to the built-in policy.
	Roles map[string][]string `yaml:"roles"`
}

// Defaults returns the settings used when no file is configured.
func Defaults() *Settings {
	return &Settings{
		Search: Search{
			Fields: []string{
				"family_name", "first_name", "middle_name", "last_name",
				"title", "organization", "department",
				"contact_first_name", "contact_last_name", "bio", "notes",
				"address_line_1", "address_line_2", "address_line_3", "address_line_4",
				"address_district", "address_county", "address_city", "address_state",
				"address_zipcode", "address_country",
				"phone_number",
			},
			FullText: true,
			Keyword:  true,
		},
		DateTypes: []string{
			"anniversary", "baptism", "birthday", "certification",
			"deceased", "employment", "graduation", "wedding",
		},
		Taxonomies: taxonomy.DefaultTaxonomies(),
	}
}

// Load reads a YAML settings file over the defaults. An empty path returns the defaults.
func Load(path string) (*Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// IsDateType reports whether t is a registered date event type.
func (s *Settings) IsDateType(t string) bool {
	for _, d := range s.DateTypes {
		if d == t {
			return true
		}
	}
	return false
}
