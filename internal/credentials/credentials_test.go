package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	table := "710100,mario,secret\n775100,luigi,hidden,https://fbs.alternative.dk\n"
	store := NewStore(table, "https://fbs.default.dk")

	c, err := store.Resolve("710100")
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		AgencyID: "710100",
		Isil:     "DK-710100",
		Username: "mario",
		Password: "secret",
		URL:      "https://fbs.default.dk",
	}, c)
}

func TestResolve_AgencyURLOverridesDefault(t *testing.T) {
	table := "775100,luigi,hidden,https://fbs.alternative.dk"
	store := NewStore(table, "https://fbs.default.dk")

	c, err := store.Resolve("775100")
	require.NoError(t, err)
	assert.Equal(t, "https://fbs.alternative.dk", c.URL)
	assert.Equal(t, "DK-775100", c.Isil)
}

func TestResolve_UnknownAgency(t *testing.T) {
	store := NewStore("710100,mario,secret", "https://fbs.default.dk")

	_, err := store.Resolve("999999")
	require.Error(t, err)

	var notConfigured NotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	assert.Equal(t, "999999", notConfigured.AgencyID)

	status, message := notConfigured.Status()
	assert.Equal(t, 403, status)
	assert.Equal(t, "Agency is missing FBS credentials", message)
}

func TestResolve_IncompleteRow(t *testing.T) {
	// rows without username or password resolve like unconfigured agencies
	store := NewStore("710100,mario\n775100,,\n", "https://fbs.default.dk")

	_, err := store.Resolve("710100")
	assert.Error(t, err)

	_, err = store.Resolve("775100")
	assert.Error(t, err)
}

func TestNewStore_IgnoresBlankLines(t *testing.T) {
	store := NewStore("\n\n710100,mario,secret\n\n", "https://fbs.default.dk")

	_, err := store.Resolve("710100")
	assert.NoError(t, err)
}
