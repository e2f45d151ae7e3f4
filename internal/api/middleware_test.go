package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAPIKey_RejectsWithJSON(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requireAPIKey("secret", log))
	r.Get("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"no header", "", http.StatusUnauthorized, "missing authorization"},
		{"wrong scheme", "Basic c2VjcmV0", http.StatusUnauthorized, "missing authorization"},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, "invalid api key"},
		{"right key", "Bearer secret", http.StatusNoContent, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs.Reset()
			req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.reason == "" {
				assert.Empty(t, logs.String())
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.reason, body["error"])
			assert.Contains(t, logs.String(), "rejected request")
			assert.Contains(t, logs.String(), "request_id=")
		})
	}
}

func TestLogRequests_RecordsRoutePattern(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	r := chi.NewRouter()
	r.Use(logRequests(log))
	r.Get("/reports/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/a.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := logs.String()
	assert.Contains(t, out, "route=/reports/{name}")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "bytes=5")
}
