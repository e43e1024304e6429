package fbs

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/DBCDK/fbs-cms-adapter/internal/credentials"
)

// ProxyRequest is the inbound request reduced to what the backend needs:
// method, path with query, headers and a fully read body.
type ProxyRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Forwarder relays rewritten client requests to the backend.
type Forwarder struct {
	client *http.Client
}

func NewForwarder(client *http.Client) *Forwarder {
	return &Forwarder{client: client}
}

// Forward sends the request to the backend with the agency and patron
// segments rewritten and the session key attached. When cpr is non-empty
// it is merged into the JSON body per the rule matching the request.
//
// All backend statuses pass through verbatim except 401, which is raised
// as SessionExpiredError so the pipeline can re-authenticate.
func (f *Forwarder) Forward(ctx context.Context, preq ProxyRequest, sessionKey string, creds credentials.Credentials, patronID string, cpr string) (*Response, error) {
	body := preq.Body
	if cpr != "" {
		rule, ok := CPRRuleFor(preq.Method, preq.Path)
		if ok {
			merged, err := rule.Apply(body, cpr)
			if err != nil {
				return nil, err
			}
			body = merged
		}
	}

	url := creds.URL + RewritePath(preq.Path, creds.Isil, patronID)

	req, err := http.NewRequestWithContext(ctx, preq.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fbs: creating forwarded request: %w", err)
	}

	copyForwardHeaders(req, preq.Header)
	req.Header.Set("X-Session", sessionKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fbs: forwarding request: %w", err)
	}
	defer resp.Body.Close()

	captured, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if captured.StatusCode == http.StatusUnauthorized {
		return nil, SessionExpiredError{Response: captured}
	}

	return captured, nil
}

// copyForwardHeaders copies the inbound headers, dropping the ones that
// must not reach the backend. Host is set by the transport from the
// backend URL; the bearer token never leaves the adapter.
func copyForwardHeaders(req *http.Request, header http.Header) {
	for name, values := range header {
		switch http.CanonicalHeaderKey(name) {
		case "Host", "Authorization":
			continue
		}
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
}
