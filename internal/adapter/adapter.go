// Package adapter orchestrates the request pipeline: token resolution,
// agency authorization, credential lookup, session establishment, patron
// resolution and the final forwarding to the backend, with a single
// re-authentication retry when the backend reports an expired session.
package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/DBCDK/fbs-cms-adapter/internal/audit"
	"github.com/DBCDK/fbs-cms-adapter/internal/credentials"
	"github.com/DBCDK/fbs-cms-adapter/internal/fbs"
	"github.com/DBCDK/fbs-cms-adapter/internal/smaug"
	"github.com/DBCDK/fbs-cms-adapter/internal/userinfo"
)

// ConfigurationResolver resolves a bearer token into its client
// configuration.
type ConfigurationResolver interface {
	Resolve(ctx context.Context, token string, userRequired bool) (smaug.Configuration, error)
}

// IdentityResolver resolves a user-bound token into user attributes.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (userinfo.Attributes, error)
}

// SessionSource provides backend session keys, cache-first.
type SessionSource interface {
	SessionKey(ctx context.Context, token string, creds credentials.Credentials, skipCache bool) (string, error)
}

// PatronSource provides backend patron ids, cache-first.
type PatronSource interface {
	Resolve(ctx context.Context, token string, sessionKey string, creds credentials.Credentials, attrs userinfo.Attributes, skipCache bool) (string, error)
}

// RequestForwarder relays the rewritten request to the backend.
type RequestForwarder interface {
	Forward(ctx context.Context, preq fbs.ProxyRequest, sessionKey string, creds credentials.Credentials, patronID string, cpr string) (*fbs.Response, error)
}

// Service is the proxy pipeline with its collaborators.
type Service struct {
	Smaug       ConfigurationResolver
	Userinfo    IdentityResolver
	Credentials *credentials.Store
	Sessions    SessionSource
	Patrons     PatronSource
	Forwarder   RequestForwarder
}

// NotFoundError hides internal-only backend paths from external callers.
type NotFoundError struct{}

func (e NotFoundError) Error() string {
	return "adapter: path targets a hidden backend protocol"
}

func (e NotFoundError) Status() (int, string) {
	return http.StatusNotFound, "not found"
}

// AgencyNotAllowedError rejects a request targeting an agency the token's
// access policy does not permit.
type AgencyNotAllowedError struct {
	AgencyID string
}

func (e AgencyNotAllowedError) Error() string {
	return "adapter: access policy does not permit agency " + e.AgencyID
}

func (e AgencyNotAllowedError) Status() (int, string) {
	return http.StatusMethodNotAllowed, "Method Not Allowed"
}

// Proxy runs the pipeline for one inbound request. Backend responses are
// returned for verbatim replay; pipeline failures are returned as errors,
// most carrying their own HTTP rendering.
func (s *Service) Proxy(ctx context.Context, preq fbs.ProxyRequest, token string) (*fbs.Response, error) {
	if hiddenPath(preq.Path) {
		return nil, NotFoundError{}
	}

	patronRequired := fbs.PatronIDRequired(preq.Path)
	_, cprRequired := fbs.CPRRuleFor(preq.Method, preq.Path)

	cfg, err := s.Smaug.Resolve(ctx, token, patronRequired)
	if err != nil {
		return nil, err
	}

	entry := audit.Log(ctx)
	entry.ClientID = cfg.App.ClientID
	entry.AgencyID = cfg.AgencyID

	// Attributes are fetched at most once and reused for the agency
	// check, the CPR merge and patron resolution.
	var attrs userinfo.Attributes
	attrsResolved := false
	resolveAttrs := func() (userinfo.Attributes, error) {
		if attrsResolved {
			return attrs, nil
		}
		resolved, err := s.Userinfo.Resolve(ctx, token)
		if err != nil {
			return userinfo.Attributes{}, err
		}
		attrs = resolved
		attrsResolved = true
		return attrs, nil
	}

	agencyID, err := s.effectiveAgency(ctx, preq.Path, cfg, resolveAttrs)
	if err != nil {
		return nil, err
	}

	creds, err := s.Credentials.Resolve(agencyID)
	if err != nil {
		return nil, err
	}

	cpr := ""
	if cprRequired {
		resolved, err := resolveAttrs()
		if err != nil {
			return nil, err
		}
		if resolved.CPR == "" {
			return nil, userinfo.MissingCPRError{}
		}
		cpr = resolved.CPR
	}

	if patronRequired {
		if _, err := resolveAttrs(); err != nil {
			return nil, err
		}
	}

	entry.Authorized = true

	attempt := func(skipCache bool) (*fbs.Response, error) {
		sessionKey, err := s.Sessions.SessionKey(ctx, token, creds, skipCache)
		if err != nil {
			return nil, err
		}

		patronID := ""
		if patronRequired {
			patronID, err = s.Patrons.Resolve(ctx, token, sessionKey, creds, attrs, skipCache)
			if err != nil {
				return nil, err
			}
			entry.PatronResolved = true
		}

		return s.Forwarder.Forward(ctx, preq, sessionKey, creds, patronID, cpr)
	}

	resp, err := attempt(false)

	var expired fbs.SessionExpiredError
	if errors.As(err, &expired) {
		// the cached session key is stale, log in again and retry once
		entry.SessionRefreshed = true
		resp, err = attempt(true)

		if errors.As(err, &expired) {
			// a second rejection is the backend's final answer
			return expired.Response, nil
		}
	}

	return resp, err
}

// effectiveAgency resolves the agency a request acts on. An explicit
// agency in the path that differs from the token's own is subject to the
// client's allowedAgencies policy.
func (s *Service) effectiveAgency(ctx context.Context, path string, cfg smaug.Configuration, resolveAttrs func() (userinfo.Attributes, error)) (string, error) {
	requested := fbs.AgencyIDFromPath(path)
	if requested == "" || requested == cfg.AgencyID {
		return cfg.AgencyID, nil
	}

	audit.Log(ctx).RequestedAgency = requested

	switch cfg.FBS.AllowedAgencies {
	case smaug.AllowedAll:
		return requested, nil
	case smaug.AllowedUser:
		if !cfg.Authenticated() {
			return "", AgencyNotAllowedError{AgencyID: requested}
		}
		attrs, err := resolveAttrs()
		if err != nil {
			return "", err
		}
		if attrs.HasAgency(requested) {
			return requested, nil
		}
		return "", AgencyNotAllowedError{AgencyID: requested}
	default:
		return "", AgencyNotAllowedError{AgencyID: requested}
	}
}

// hiddenPath reports whether the path addresses one of the backend's
// internal authentication protocols, which are never exposed externally.
// The marker is matched anywhere in the path; "authenticate" also covers
// "preauthenticated" paths.
func hiddenPath(path string) bool {
	path, _, _ = strings.Cut(path, "?")
	return strings.Contains(strings.ToLower(path), "authenticate")
}
