package fbs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DBCDK/fbs-cms-adapter/internal/cache"
	"github.com/DBCDK/fbs-cms-adapter/internal/testhelpers"
	"github.com/DBCDK/fbs-cms-adapter/internal/userinfo"
)

func newPatronCache(t *testing.T) cache.Cache {
	t.Helper()

	c, err := cache.NewMemory(0, 100)
	require.NoError(t, err)
	return c
}

func borchkAttributes() userinfo.Attributes {
	return userinfo.Attributes{
		UserID:  "0102033690",
		Pincode: "1234",
	}
}

func nemloginAttributes() userinfo.Attributes {
	return userinfo.Attributes{
		UserID:  "0102033690",
		IDPUsed: userinfo.IDPNemlogin,
	}
}

func TestResolveAuthenticateProtocol(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/external/DK-790900/patrons/authenticate/v9", r.URL.Path)
		assert.Equal(t, "session-key", r.Header.Get("X-Session"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"libraryCardNumber":"0102033690","pincode":"1234"}`, string(body))

		testhelpers.WriteJSON(w, map[string]any{"patronId": 1234})
	}))
	t.Cleanup(server.Close)

	resolver := NewPatronResolver(server.Client(), newPatronCache(t))

	patronID, err := resolver.Resolve(context.Background(), "token", "session-key",
		testCredentials(server.URL), borchkAttributes(), false)
	require.NoError(t, err)
	assert.Equal(t, "1234", patronID)

	// cached on the second call
	patronID, err = resolver.Resolve(context.Background(), "token", "session-key",
		testCredentials(server.URL), borchkAttributes(), false)
	require.NoError(t, err)
	assert.Equal(t, "1234", patronID)
	assert.Equal(t, 1, calls)
}

func TestResolvePreauthenticatedProtocol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/external/DK-790900/patrons/preauthenticated/v9", r.URL.Path)
		assert.Equal(t, "session-key", r.Header.Get("X-Session"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "0102033690", string(body))

		testhelpers.WriteJSON(w, map[string]any{
			"patron": map[string]any{"patronId": 5678},
		})
	}))
	t.Cleanup(server.Close)

	resolver := NewPatronResolver(server.Client(), newPatronCache(t))

	patronID, err := resolver.Resolve(context.Background(), "token", "session-key",
		testCredentials(server.URL), nemloginAttributes(), false)
	require.NoError(t, err)
	assert.Equal(t, "5678", patronID)
}

func TestResolveSkipCacheRefetches(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		testhelpers.WriteJSON(w, map[string]any{"patronId": 1234})
	}))
	t.Cleanup(server.Close)

	patrons := newPatronCache(t)
	require.NoError(t, patrons.Set(context.Background(), "790900-token", "9999"))

	resolver := NewPatronResolver(server.Client(), patrons)

	patronID, err := resolver.Resolve(context.Background(), "token", "session-key",
		testCredentials(server.URL), borchkAttributes(), true)
	require.NoError(t, err)
	assert.Equal(t, "1234", patronID)
	assert.Equal(t, 1, calls)
}

func TestResolveSessionExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	resolver := NewPatronResolver(server.Client(), newPatronCache(t))

	_, err := resolver.Resolve(context.Background(), "token", "stale-session",
		testCredentials(server.URL), borchkAttributes(), false)

	var expired SessionExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, http.StatusUnauthorized, expired.Response.StatusCode)
}

func TestResolvePatronNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 without a patron id means the backend rejected the identity
		testhelpers.WriteJSON(w, map[string]any{"authenticated": false})
	}))
	t.Cleanup(server.Close)

	resolver := NewPatronResolver(server.Client(), newPatronCache(t))

	_, err := resolver.Resolve(context.Background(), "token", "session-key",
		testCredentials(server.URL), borchkAttributes(), false)

	var upstream UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusOK, upstream.Response.StatusCode)
}
