// Package audit records one structured log entry per proxied request,
// capturing the request identity, the resolved tenant and the outcome of
// the authentication pipeline.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the level used for audit entries. Audit entries are always
// written, regardless of the configured global level.
const Level = zerolog.InfoLevel

type contextKey struct{}

// Entry accumulates audit details over the lifetime of a request. The
// pipeline enriches it as resolution proceeds; the middleware writes it
// exactly once when the request finishes.
type Entry struct {
	Method    string
	Path      string
	Query     string
	SourceIP  string
	UserAgent string
	Status    int

	Authorized       bool
	ClientID         string
	AgencyID         string
	RequestedAgency  string
	PatronResolved   bool
	SessionRefreshed bool
	Error            string

	start time.Time
}

// Context returns a context carrying an audit entry, creating one when
// the context has none. The returned entry is the one the middleware
// will write.
func Context(ctx context.Context) (context.Context, *Entry) {
	if entry, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return ctx, entry
	}

	entry := &Entry{Status: http.StatusOK}
	return context.WithValue(ctx, contextKey{}, entry), entry
}

// Log returns the audit entry for the context. When no entry is present,
// a dummy is returned so callers can enrich unconditionally.
func Log(ctx context.Context) *Entry {
	if entry, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return entry
	}
	return &Entry{}
}

// Begin captures the request details that are known up front.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.Query = r.URL.RawQuery
	e.UserAgent = r.UserAgent()
	e.start = time.Now()

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		e.SourceIP = host
	} else {
		e.SourceIP = r.RemoteAddr
	}
}

// End returns the function that writes the entry. It is deferred by the
// middleware so the entry is written even when the handler panics.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if r := recover(); r != nil {
			if e.Error != "" {
				e.Error = fmt.Sprintf("%s; panic: %v", e.Error, r)
			} else {
				e.Error = fmt.Sprintf("panic: %v", r)
			}

			e.write(ctx)

			// the middleware reports, it does not recover
			panic(r)
		}

		e.write(ctx)
	}
}

func (e *Entry) write(ctx context.Context) {
	logger := log.Ctx(ctx)
	logger.WithLevel(Level).EmbedObject(e).Msg("audit")
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *Entry) MarshalZerologObject(event *zerolog.Event) {
	event.
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Bool("authorized", e.Authorized)

	NewOptionalEvent(nil).
		Str("query", e.Query).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Set(event, "request")

	NewOptionalEvent(nil).
		Str("clientId", e.ClientID).
		Str("agencyId", e.AgencyID).
		Str("requestedAgency", e.RequestedAgency).
		Set(event, "tenant")

	if e.PatronResolved {
		event.Bool("patronResolved", true)
	}
	if e.SessionRefreshed {
		event.Bool("sessionRefreshed", true)
	}
	if e.Error != "" {
		event.Str("error", e.Error)
	}

	if !e.start.IsZero() {
		event.Dur("elapsed", time.Since(e.start))
	}
}

// Middleware audits every request passing through it.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())

			entry.Begin(r)
			defer entry.End(ctx)()

			sw := &statusWriter{ResponseWriter: w, entry: entry}
			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

// statusWriter records the response status on the audit entry.
type statusWriter struct {
	http.ResponseWriter
	entry *Entry
}

func (w *statusWriter) WriteHeader(status int) {
	w.entry.Status = status
	w.ResponseWriter.WriteHeader(status)
}
