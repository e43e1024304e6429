package fbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgencyIDFromPath(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		expected string
	}{
		{"placeholder", "/external/agencyid/catalog/items/v1", ""},
		{"placeholder uppercase", "/external/AGENCYID/catalog/items/v1", ""},
		{"bare id", "/external/790900/catalog/items/v1", "790900"},
		{"isil prefixed", "/external/DK-790900/catalog/items/v1", "790900"},
		{"isil lowercase", "/external/dk-790900/catalog/items/v1", "790900"},
		{"version before agency", "/external/v1/790900/catalog/items", "790900"},
		{"no agency segment", "/healthcheck", ""},
		{"external last segment", "/external", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, AgencyIDFromPath(tc.path))
		})
	}
}

func TestAgencyPathValue(t *testing.T) {
	assert.Equal(t, "agencyid", AgencyPathValue("/external/agencyid/some/path"))
	assert.Equal(t, "DK-790900", AgencyPathValue("/external/DK-790900/some/path"))
	assert.Equal(t, "", AgencyPathValue("/no/agency/here"))
}

func TestRewritePath(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		patronID string
		expected string
	}{
		{
			name:     "placeholder replaced by isil",
			path:     "/external/agencyid/catalog/items/v1",
			expected: "/external/DK-790900/catalog/items/v1",
		},
		{
			name:     "explicit agency replaced by isil",
			path:     "/external/710100/catalog/items/v1",
			expected: "/external/DK-790900/catalog/items/v1",
		},
		{
			name:     "patron placeholder replaced",
			path:     "/external/agencyid/patrons/patronid/loans/v2",
			patronID: "1234",
			expected: "/external/DK-790900/patrons/1234/loans/v2",
		},
		{
			name:     "query preserved",
			path:     "/external/agencyid/catalog/items/v1?recordid=870970-basis%3A29433909&y=2",
			expected: "/external/DK-790900/catalog/items/v1?recordid=870970-basis%3A29433909&y=2",
		},
		{
			name:     "version before agency",
			path:     "/external/v1/agencyid/authentication/login",
			expected: "/external/v1/DK-790900/authentication/login",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RewritePath(tc.path, "DK-790900", tc.patronID))
		})
	}
}

func TestPatronIDRequired(t *testing.T) {
	assert.True(t, PatronIDRequired("/external/agencyid/patrons/patronid/loans/v2"))
	assert.False(t, PatronIDRequired("/external/agencyid/catalog/items/v1"))
	assert.False(t, PatronIDRequired("/external/agencyid/catalog/items/v1?x=patronid"))
}
