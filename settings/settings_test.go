package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.True(t, s.Search.FullText)
	assert.True(t, s.Search.Keyword)
	assert.Contains(t, s.Search.Fields, "last_name")
	assert.True(t, s.IsDateType("birthday"))
	assert.False(t, s.IsDateType("payday"))
	assert.Len(t, s.Taxonomies, 2)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	err := os.WriteFile(path, []byte(`
search:
  fields: [first_name, last_name, favorite_color]
  fulltext_enabled: false
login_required: true
allow_public_override: true
date_types: [birthday]
taxonomies:
  - slug: region
    query_var: cn-region-tax
    hierarchical: true
roles:
  volunteer: [view_public, view_private]
`), 0600)
	require.NoError(t, err)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"first_name", "last_name", "favorite_color"}, s.Search.Fields)
	assert.False(t, s.Search.FullText)
	assert.True(t, s.Search.Keyword, "unset keys keep their default")
	assert.True(t, s.LoginRequired)
	assert.True(t, s.AllowPublicOverride)
	assert.False(t, s.AllowPrivateOverride)
	assert.False(t, s.IsDateType("anniversary"))
	require.Len(t, s.Taxonomies, 1)
	assert.Equal(t, "cn-region-tax", s.Taxonomies[0].QueryVar)
	assert.Equal(t, []string{"view_public", "view_private"}, s.Roles["volunteer"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}
