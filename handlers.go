package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/DBCDK/fbs-cms-adapter/internal/audit"
	"github.com/DBCDK/fbs-cms-adapter/internal/fbs"
)

// proxyService is the pipeline surface the handler needs.
type proxyService interface {
	Proxy(ctx context.Context, preq fbs.ProxyRequest, token string) (*fbs.Response, error)
}

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// responseCarrier is implemented by errors that carry a backend response
// which must be replayed to the client verbatim.
type responseCarrier interface {
	ProxyResponse() *fbs.Response
}

func handleProxy(service proxyService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		token, ok := bearerToken(r)
		if !ok {
			writeJSONMessage(w, http.StatusBadRequest, "authorization header is required")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Ctx(r.Context()).Info().Err(err).Msg("failed to read request body")
			writeJSONMessage(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
			return
		}

		resp, err := service.Proxy(r.Context(), fbs.ProxyRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Header: r.Header,
			Body:   body,
		}, token)
		if err != nil {
			renderError(w, r, err)
			return
		}

		resp.Write(w)
	})
}

// bearerToken extracts the token from the Authorization header, tolerating
// a missing scheme prefix.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	return header, header != ""
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	entry := audit.Log(r.Context())
	entry.Error = err.Error()

	// some pipeline failures carry the backend's own response
	var carrier responseCarrier
	if errors.As(err, &carrier) {
		carrier.ProxyResponse().Write(w)
		return
	}

	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		status, message := statuser.Status()
		writeJSONMessage(w, status, message)
		return
	}

	// anything else is unexpected, possibly a bug
	log.Ctx(r.Context()).Error().Err(err).Msg("proxy request failed unexpectedly")
	writeJSONMessage(w, http.StatusInternalServerError, "internal server error")
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// writeJSONMessage writes the {"message": ...} error shape used for all
// adapter-originated failures.
func writeJSONMessage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(map[string]string{"message": message}); err != nil {
		// the status code is already written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
