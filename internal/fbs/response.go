// Package fbs talks to the FBS CMS backend: session login, patron
// resolution and the forwarding of rewritten client requests.
package fbs

import (
	"fmt"
	"io"
	"net/http"
)

// Response is a captured backend response, replayed verbatim to the
// adapter's client when the backend has the final word.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Write replays the response on w.
func (r *Response) Write(w http.ResponseWriter) {
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}

// SessionExpiredError indicates that the backend rejected the session key
// with a 401. The caller retries once with fresh credentials; a second
// rejection surfaces the carried response to the client.
type SessionExpiredError struct {
	Response *Response
}

func (e SessionExpiredError) Error() string {
	return "fbs: session key expired"
}

func (e SessionExpiredError) ProxyResponse() *Response {
	return e.Response
}

// UpstreamError carries a backend response that terminates the pipeline
// early, replayed to the client as-is.
type UpstreamError struct {
	Response *Response
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("fbs: upstream responded with status %d", e.Response.StatusCode)
}

func (e UpstreamError) ProxyResponse() *Response {
	return e.Response
}

func readResponse(resp *http.Response) (*Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fbs: reading response body: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
