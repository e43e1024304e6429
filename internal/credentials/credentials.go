// Package credentials holds the per-agency FBS connection table. The table
// is loaded once at startup from a line-oriented environment blob and is
// immutable afterwards, so lookups are safe from any request goroutine.
package credentials

import (
	"net/http"
	"strings"
)

// Credentials is the FBS connection record for a single agency.
type Credentials struct {
	AgencyID string
	// Isil is the tenant code FBS expects in URL paths, derived from the
	// agency id.
	Isil     string
	Username string
	Password string
	// URL is the FBS CMS API origin for this agency.
	URL string
}

// NotConfiguredError indicates the resolved agency has no usable FBS
// credentials.
type NotConfiguredError struct {
	AgencyID string
}

func (e NotConfiguredError) Error() string {
	return "agency " + e.AgencyID + " is missing FBS credentials"
}

func (e NotConfiguredError) Status() (int, string) {
	return http.StatusForbidden, "Agency is missing FBS credentials"
}

// Store resolves agency ids to FBS credentials.
type Store struct {
	agencies map[string]Credentials
}

// NewStore parses the credential table. Each non-empty line configures one
// agency as agencyid,username,password[,url]; a missing url falls back to
// defaultURL. Incomplete rows are kept but fail resolution, matching a row
// that was never configured.
func NewStore(table, defaultURL string) *Store {
	agencies := map[string]Credentials{}

	for line := range strings.Lines(table) {
		fields := strings.Split(strings.TrimSpace(line), ",")
		agencyID := strings.TrimSpace(fields[0])
		if agencyID == "" {
			continue
		}

		c := Credentials{
			AgencyID: agencyID,
			Isil:     "DK-" + agencyID,
			URL:      defaultURL,
		}
		if len(fields) > 1 {
			c.Username = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			c.Password = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 && strings.TrimSpace(fields[3]) != "" {
			c.URL = strings.TrimSpace(fields[3])
		}

		agencies[agencyID] = c
	}

	return &Store{agencies: agencies}
}

// Resolve returns the credentials for the given agency, or a
// NotConfiguredError when the agency is unknown or its row is incomplete.
func (s *Store) Resolve(agencyID string) (Credentials, error) {
	c, ok := s.agencies[agencyID]
	if !ok || c.Username == "" || c.Password == "" {
		return Credentials{}, NotConfiguredError{AgencyID: agencyID}
	}

	return c, nil
}
