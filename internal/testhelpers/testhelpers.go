// Package testhelpers holds small helpers shared by the package tests.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
)

// SetupLogger routes zerolog output through the test log for the duration
// of the test, including loggers resolved from bare contexts.
func SetupLogger(t *testing.T) {
	t.Helper()

	logger := zerolog.New(zerolog.NewTestWriter(t))

	previous := zerolog.DefaultContextLogger
	zerolog.DefaultContextLogger = &logger
	t.Cleanup(func() {
		zerolog.DefaultContextLogger = previous
	})
}

// WriteJSON writes the payload as a JSON response.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
