package gafscrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contractor-intel/internal/config"
)

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		BaseURL:         "https://www.gaf.com",
		Headless:        true,
		MaxPages:        2,
		RequestsPerSec:  100,
		DefaultDistance: 25,
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		label    string
		city     string
		distance *float64
	}{
		{"Wayne, NJ - 17.3 mi", "Wayne, NJ", fptr(17.3)},
		{"Brooklyn, NY - 2 mi", "Brooklyn, NY", fptr(2)},
		{"Hoboken, NJ", "Hoboken, NJ", nil},
		{"  Paterson, NJ - 5.0 mi  ", "Paterson, NJ", fptr(5)},
		{"Somewhere - no distance here", "Somewhere", nil},
		{"", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			city, distance := parseLocation(tt.label)
			assert.Equal(t, tt.city, city)
			if tt.distance == nil {
				assert.Nil(t, distance)
			} else {
				require.NotNil(t, distance)
				assert.InDelta(t, *tt.distance, *distance, 0.001)
			}
		})
	}
}

func TestParseReviewCount(t *testing.T) {
	require.NotNil(t, parseReviewCount("(437)"))
	assert.Equal(t, 437, *parseReviewCount("(437)"))
	assert.Equal(t, 0, *parseReviewCount("(0)"))
	assert.Nil(t, parseReviewCount(""))
	assert.Nil(t, parseReviewCount("437"))
	assert.Nil(t, parseReviewCount("(many)"))
}

func TestParseRating(t *testing.T) {
	require.NotNil(t, parseRating("5.0"))
	assert.Equal(t, 5.0, *parseRating("5.0"))
	assert.Equal(t, 4.8, *parseRating(" 4.8 "))
	assert.Nil(t, parseRating(""))
	assert.Nil(t, parseRating("five"))
	assert.Nil(t, parseRating("5.1"), "ratings above 5 are invalid")
	assert.Nil(t, parseRating("-1"))
}

func TestParsePhone(t *testing.T) {
	require.NotNil(t, parsePhone("tel:(973) 555-0100"))
	assert.Equal(t, "(973) 555-0100", *parsePhone("tel:(973) 555-0100"))
	assert.Nil(t, parsePhone("(973) 555-0100"))
	assert.Nil(t, parsePhone("tel:"))
	assert.Nil(t, parsePhone(""))
}

func TestAbsoluteURL(t *testing.T) {
	base := "https://www.gaf.com"
	assert.Equal(t,
		"https://www.gaf.com/en-us/roofing-contractors/residential/apex-roofing-1",
		absoluteURL(base, "/en-us/roofing-contractors/residential/apex-roofing-1"))
	assert.Equal(t, "https://other.example/x", absoluteURL(base, "https://other.example/x"))
	assert.Equal(t, "", absoluteURL(base, ""))
	assert.Equal(t, "https://www.gaf.com/relative", absoluteURL(base+"/", "relative"))
}

func TestSourceIDFromURL(t *testing.T) {
	assert.Equal(t, "apex-roofing-1",
		sourceIDFromURL("https://www.gaf.com/en-us/roofing-contractors/residential/apex-roofing-1"))
	assert.Equal(t, "apex-roofing-1",
		sourceIDFromURL("https://www.gaf.com/en-us/roofing-contractors/residential/apex-roofing-1/"))
	assert.Equal(t, "", sourceIDFromURL(""))
}

func TestCardToSnapshot(t *testing.T) {
	s := New(testScrapeConfig())
	snap := s.cardToSnapshot(listingCard{
		Name:      "Apex Roofing",
		Rating:    "4.5",
		Reviews:   "(120)",
		Location:  "Wayne, NJ - 17.3 mi",
		PhoneHref: "tel:(973) 555-0100",
		URL:       "/en-us/roofing-contractors/residential/apex-roofing-1",
	})

	assert.Equal(t, "Apex Roofing", snap.Name)
	assert.Equal(t, "Wayne, NJ", snap.Location)
	require.NotNil(t, snap.Rating)
	assert.Equal(t, 4.5, *snap.Rating)
	require.NotNil(t, snap.Reviews)
	assert.Equal(t, 120, *snap.Reviews)
	require.NotNil(t, snap.Distance)
	assert.InDelta(t, 17.3, *snap.Distance, 0.001)
	require.NotNil(t, snap.Phone)
	assert.Equal(t, "(973) 555-0100", *snap.Phone)
	assert.Equal(t, "https://www.gaf.com/en-us/roofing-contractors/residential/apex-roofing-1", snap.ProfileURL)
	assert.Equal(t, "apex-roofing-1", snap.SourceID)
	assert.NoError(t, snap.Validate())
}

func fptr(v float64) *float64 { return &v }
