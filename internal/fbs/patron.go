package fbs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DBCDK/fbs-cms-adapter/internal/cache"
	"github.com/DBCDK/fbs-cms-adapter/internal/credentials"
	"github.com/DBCDK/fbs-cms-adapter/internal/userinfo"
)

// PatronResolver exchanges a session key and a user identity for the
// backend's patron id, cached per agency and token alongside the session
// key namespace.
type PatronResolver struct {
	client  *http.Client
	patrons cache.Cache
}

func NewPatronResolver(client *http.Client, patrons cache.Cache) *PatronResolver {
	return &PatronResolver{
		client:  client,
		patrons: patrons,
	}
}

// Resolve returns the patron id for the user behind the token. The login
// provider in the attributes selects the backend protocol: Nemlogin users
// are resolved through the preauthenticated endpoint, everyone else
// through library card and pincode authentication.
func (p *PatronResolver) Resolve(ctx context.Context, token string, sessionKey string, creds credentials.Credentials, attrs userinfo.Attributes, skipCache bool) (string, error) {
	key := cacheKey(creds.AgencyID, token)

	if !skipCache {
		cached, found, err := p.patrons.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("fbs: reading patron cache: %w", err)
		}
		if found {
			return cached, nil
		}
	}

	patronID, err := protocolFor(attrs).resolve(ctx, p.client, sessionKey, creds, attrs)
	if err != nil {
		return "", err
	}

	if err := p.patrons.Set(ctx, key, patronID); err != nil {
		return "", fmt.Errorf("fbs: writing patron cache: %w", err)
	}

	return patronID, nil
}

type patronProtocol interface {
	resolve(ctx context.Context, client *http.Client, sessionKey string, creds credentials.Credentials, attrs userinfo.Attributes) (string, error)
}

func protocolFor(attrs userinfo.Attributes) patronProtocol {
	if attrs.IDPUsed == userinfo.IDPNemlogin {
		return preauthenticated{}
	}
	return authenticate{}
}

// preauthenticated posts the bare user id; the backend trusts the login
// already performed by the identity provider.
type preauthenticated struct{}

func (preauthenticated) resolve(ctx context.Context, client *http.Client, sessionKey string, creds credentials.Credentials, attrs userinfo.Attributes) (string, error) {
	url := fmt.Sprintf("%s/external/%s/patrons/preauthenticated/v9", creds.URL, creds.Isil)

	resp, err := patronRequest(ctx, client, url, sessionKey, "text/plain", strings.NewReader(attrs.UserID))
	if err != nil {
		return "", err
	}

	var body struct {
		Patron struct {
			PatronID json.Number `json:"patronId"`
		} `json:"patron"`
	}
	return extractPatronID(resp, &body, func() json.Number { return body.Patron.PatronID })
}

// authenticate validates the user's library card number and pincode
// against the backend directly.
type authenticate struct{}

func (authenticate) resolve(ctx context.Context, client *http.Client, sessionKey string, creds credentials.Credentials, attrs userinfo.Attributes) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"libraryCardNumber": attrs.UserID,
		"pincode":           attrs.Pincode,
	})
	if err != nil {
		return "", fmt.Errorf("fbs: serializing authenticate request: %w", err)
	}

	url := fmt.Sprintf("%s/external/%s/patrons/authenticate/v9", creds.URL, creds.Isil)

	resp, err := patronRequest(ctx, client, url, sessionKey, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var body struct {
		PatronID json.Number `json:"patronId"`
	}
	return extractPatronID(resp, &body, func() json.Number { return body.PatronID })
}

func patronRequest(ctx context.Context, client *http.Client, url string, sessionKey string, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("fbs: creating patron request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Session", sessionKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fbs: calling patron endpoint: %w", err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

// extractPatronID decodes the patron id from a 200 response. A 401 raises
// SessionExpiredError for the pipeline's retry branch; any other outcome
// surfaces the backend response verbatim.
func extractPatronID(resp *Response, body any, id func() json.Number) (string, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return "", SessionExpiredError{Response: resp}
	}

	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(resp.Body, body); err == nil {
			if patronID := id().String(); patronID != "" {
				return patronID, nil
			}
		}
	}

	return "", UpstreamError{Response: resp}
}
