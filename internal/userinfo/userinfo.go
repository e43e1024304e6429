// Package userinfo fetches the attributes of an authenticated user from
// the login platform: CPR number, user id, pincode, login method and the
// agencies the user belongs to.
package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/DBCDK/fbs-cms-adapter/internal/config"
)

// IDPNemlogin is the identity provider value indicating that the user
// logged in through Nemlogin. Nemlogin users carry no pincode and are
// resolved against the backend's preauthenticated endpoint.
const IDPNemlogin = "nemlogin"

// Attributes are the user attributes attached to an authenticated token.
type Attributes struct {
	CPR      string   `json:"cpr"`
	UserID   string   `json:"userId"`
	Pincode  string   `json:"pincode"`
	IDPUsed  string   `json:"idpUsed"`
	Agencies []Agency `json:"agencies"`
}

// Agency is an agency membership entry in the user's attributes.
type Agency struct {
	AgencyID string `json:"agencyId"`
}

// HasAgency reports whether the user belongs to the given agency.
func (a Attributes) HasAgency(agencyID string) bool {
	for _, agency := range a.Agencies {
		if agency.AgencyID == agencyID {
			return true
		}
	}
	return false
}

// MissingCPRError indicates that an operation needs the user's CPR number
// but the token's attributes carry none.
type MissingCPRError struct{}

func (e MissingCPRError) Error() string {
	return "userinfo: token has no cpr attribute"
}

func (e MissingCPRError) Status() (int, string) {
	return http.StatusForbidden, "token does not include a cpr"
}

// Client fetches user attributes from the userinfo service.
type Client struct {
	url    string
	client *http.Client
}

func New(cfg config.UserinfoConfig, client *http.Client) *Client {
	return &Client{
		url:    cfg.URL,
		client: client,
	}
}

// Resolve fetches the attributes for the given user-bound token.
func (c *Client) Resolve(ctx context.Context, token string) (Attributes, error) {
	var body struct {
		Attributes Attributes `json:"attributes"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Attributes{}, fmt.Errorf("userinfo: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Attributes{}, fmt.Errorf("userinfo: fetching attributes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Attributes{}, fmt.Errorf("userinfo: unexpected status %d fetching attributes", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Attributes{}, fmt.Errorf("userinfo: decoding attributes: %w", err)
	}

	return body.Attributes, nil
}
