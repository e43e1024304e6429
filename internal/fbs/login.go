package fbs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/DBCDK/fbs-cms-adapter/internal/cache"
	"github.com/DBCDK/fbs-cms-adapter/internal/credentials"
)

// LoginClient obtains backend session keys, caching them per agency and
// token. A cached key has no expiry of its own: it is replaced when the
// backend starts rejecting it.
type LoginClient struct {
	client   *http.Client
	sessions cache.Cache
}

func NewLoginClient(client *http.Client, sessions cache.Cache) *LoginClient {
	return &LoginClient{
		client:   client,
		sessions: sessions,
	}
}

// SessionKey returns a session key for the agency's credentials, from
// cache when allowed, otherwise via a fresh backend login. The retry
// branch of the pipeline sets skipCache to force the fresh login.
func (l *LoginClient) SessionKey(ctx context.Context, token string, creds credentials.Credentials, skipCache bool) (string, error) {
	key := cacheKey(creds.AgencyID, token)

	if !skipCache {
		cached, found, err := l.sessions.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("fbs: reading session cache: %w", err)
		}
		if found {
			return cached, nil
		}
	}

	sessionKey, err := l.login(ctx, creds)
	if err != nil {
		return "", err
	}

	if err := l.sessions.Set(ctx, key, sessionKey); err != nil {
		return "", fmt.Errorf("fbs: writing session cache: %w", err)
	}

	return sessionKey, nil
}

func (l *LoginClient) login(ctx context.Context, creds credentials.Credentials) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return "", fmt.Errorf("fbs: serializing login request: %w", err)
	}

	url := fmt.Sprintf("%s/external/v1/%s/authentication/login", creds.URL, creds.Isil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("fbs: creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fbs: calling login endpoint: %w", err)
	}
	defer resp.Body.Close()

	captured, err := readResponse(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusOK {
		var body struct {
			SessionKey string `json:"sessionKey"`
		}
		if err := json.Unmarshal(captured.Body, &body); err != nil {
			return "", fmt.Errorf("fbs: decoding login response: %w", err)
		}
		if body.SessionKey != "" {
			return body.SessionKey, nil
		}
	}

	log.Debug().
		Str("agencyId", creds.AgencyID).
		Int("status", resp.StatusCode).
		Msg("backend login failed")

	return "", UpstreamError{Response: captured}
}

// cacheKey builds the shared cache key for both the session key and
// patron id namespaces.
func cacheKey(agencyID string, token string) string {
	return agencyID + "-" + token
}
