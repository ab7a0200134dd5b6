package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contractor-intel/internal/model"
)

func TestParseSearches(t *testing.T) {
	data := []byte(`
searches:
  - zip_code: "10013"
    distance: 25
  - zip_code: "07470"
    distance: 10
    max_results: 50
`)
	searches, err := parseSearches(data)
	require.NoError(t, err)
	require.Len(t, searches, 2)
	assert.Equal(t, model.SearchParams{ZipCode: "10013", Distance: 25}, searches[0])
	assert.Equal(t, model.SearchParams{ZipCode: "07470", Distance: 10, MaxResults: 50}, searches[1])
}

func TestParseSearchesEmpty(t *testing.T) {
	_, err := parseSearches([]byte(`searches: []`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entries")
}

func TestParseSearchesMissingZip(t *testing.T) {
	_, err := parseSearches([]byte("searches:\n  - distance: 25\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing zip_code")
}

func TestParseSearchesBadYAML(t *testing.T) {
	_, err := parseSearches([]byte("searches: [not closed"))
	require.Error(t, err)
}
