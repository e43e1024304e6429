// This command is only used for local testing: it serves stand-ins for the
// token service, the userinfo service and the FBS CMS API so the adapter
// can be exercised without real upstream access.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port       string `env:"MOCK_PORT, default=3002"`
	AgencyID   string `env:"MOCK_AGENCY_ID, default=790900"`
	ClientID   string `env:"MOCK_CLIENT_ID, default=local-client"`
	UserID     string `env:"MOCK_USER_ID, default=0102033690"`
	CPR        string `env:"MOCK_CPR, default=0102033690"`
	Policy     string `env:"MOCK_ALLOWED_AGENCIES, default=own"`
	SessionKey string `env:"MOCK_SESSION_KEY, default=mock-session-key"`
	PatronID   string `env:"MOCK_PATRON_ID, default=1234"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := Config{}
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()

	// token service: GET /smaug?token=...
	mux.HandleFunc("GET /smaug", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"agencyId": cfg.AgencyID,
			"user":     map[string]any{"id": cfg.UserID, "pin": "1234"},
			"fbs":      map[string]any{"allowedAgencies": cfg.Policy},
			"app":      map[string]any{"clientId": cfg.ClientID},
		})
	})

	// identity service: GET /userinfo with bearer auth
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{
			"attributes": map[string]any{
				"cpr":      cfg.CPR,
				"userId":   cfg.UserID,
				"pincode":  "1234",
				"agencies": []map[string]any{{"agencyId": cfg.AgencyID}},
			},
		})
	})

	// FBS CMS API stand-in
	mux.HandleFunc("POST /external/v1/{isil}/authentication/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sessionKey": cfg.SessionKey})
	})
	mux.HandleFunc("POST /external/{isil}/patrons/authenticate/v9", func(w http.ResponseWriter, r *http.Request) {
		requireSession(cfg, w, r, func() {
			writeJSON(w, map[string]any{"patronId": json.Number(cfg.PatronID)})
		})
	})
	mux.HandleFunc("POST /external/{isil}/patrons/preauthenticated/v9", func(w http.ResponseWriter, r *http.Request) {
		requireSession(cfg, w, r, func() {
			writeJSON(w, map[string]any{
				"patron": map[string]any{"patronId": json.Number(cfg.PatronID)},
			})
		})
	})
	mux.HandleFunc("/external/", func(w http.ResponseWriter, r *http.Request) {
		requireSession(cfg, w, r, func() {
			writeJSON(w, map[string]any{
				"mock":   true,
				"method": r.Method,
				"path":   r.URL.Path,
			})
		})
	})

	addr := ":" + strings.TrimPrefix(cfg.Port, ":")
	log.Info().Str("addr", addr).Msg("mock upstream services listening")

	if err := http.ListenAndServe(addr, logRequests(mux)); err != nil {
		log.Fatal().Err(err).Msg("mock server failed")
	}
}

func requireSession(cfg Config, w http.ResponseWriter, r *http.Request, ok func()) {
	if r.Header.Get("X-Session") != cfg.SessionKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ok()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("mock request")
		next.ServeHTTP(w, r)
	})
}
