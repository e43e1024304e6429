// Package smaug resolves bearer tokens into client configurations: the
// agency the token belongs to, the access policy for the FBS CMS product,
// and the authenticated user when the token is user-bound.
package smaug

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/DBCDK/fbs-cms-adapter/internal/config"
)

// Allowed agency policies for the FBS CMS product. The policy governs
// whether a request may target an agency other than the token's own.
const (
	AllowedOwn  = "own"
	AllowedUser = "user"
	AllowedAll  = "all"
)

// Configuration is a token's resolved client configuration.
type Configuration struct {
	AgencyID string `json:"agencyId"`
	User     *User  `json:"user"`
	FBS      Access `json:"fbs"`
	App      App    `json:"app"`
}

// User is present when the token is bound to an authenticated patron.
type User struct {
	ID  string `json:"id"`
	Pin string `json:"pin"`
}

// Access is the FBS CMS access policy attached to the client.
type Access struct {
	AllowedAgencies string `json:"allowedAgencies"`
}

// App identifies the client application the token was issued to.
type App struct {
	ClientID string `json:"clientId"`
}

// Authenticated reports whether the token carries an authenticated user.
func (c Configuration) Authenticated() bool {
	return c.User != nil && c.User.ID != ""
}

// InvalidTokenError indicates that the token is unknown or expired.
type InvalidTokenError struct{}

func (e InvalidTokenError) Error() string {
	return "smaug: token is invalid"
}

func (e InvalidTokenError) Status() (int, string) {
	return http.StatusForbidden, "invalid token"
}

// AccessDeniedError indicates that the token's client has no usable FBS
// access policy.
type AccessDeniedError struct {
	ClientID string
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("smaug: client %q has no valid fbs access policy", e.ClientID)
}

func (e AccessDeniedError) Status() (int, string) {
	return http.StatusForbidden, "Forbidden"
}

// AuthenticationRequiredError indicates that the operation needs a
// user-bound token but the supplied token is anonymous.
type AuthenticationRequiredError struct{}

func (e AuthenticationRequiredError) Error() string {
	return "smaug: operation requires a user authenticated token"
}

func (e AuthenticationRequiredError) Status() (int, string) {
	return http.StatusForbidden, "user authenticated token is required"
}

// Client resolves tokens against the Smaug configuration service.
type Client struct {
	url    string
	client *http.Client
}

func New(cfg config.SmaugConfig, client *http.Client) *Client {
	return &Client{
		url:    cfg.URL,
		client: client,
	}
}

// Resolve fetches and validates the configuration for the given token.
// When userRequired is set, an anonymous token is rejected with
// AuthenticationRequiredError.
func (c *Client) Resolve(ctx context.Context, token string, userRequired bool) (Configuration, error) {
	var cfg Configuration

	q := url.Values{}
	q.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return cfg, fmt.Errorf("smaug: creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("smaug: fetching configuration: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return cfg, InvalidTokenError{}
	default:
		return cfg, fmt.Errorf("smaug: unexpected status %d resolving token", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("smaug: decoding configuration: %w", err)
	}

	if err := validate(cfg, userRequired); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Configuration, userRequired bool) error {
	switch cfg.FBS.AllowedAgencies {
	case AllowedOwn, AllowedUser, AllowedAll:
	default:
		log.Debug().
			Str("clientId", cfg.App.ClientID).
			Str("allowedAgencies", cfg.FBS.AllowedAgencies).
			Msg("client has missing or invalid fbs access policy")
		return AccessDeniedError{ClientID: cfg.App.ClientID}
	}

	if userRequired && !cfg.Authenticated() {
		return AuthenticationRequiredError{}
	}

	return nil
}
