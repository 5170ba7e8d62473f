package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SESSION_SECRET", "test-secret")

	s := New()
	s.RegisterRoutes()
	t.Cleanup(func() {
		s.bridge.Shutdown()
		_ = s.bus.Close()
		_ = s.messages.Close()
		_ = s.db.Close()
	})
	return s
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestServer_PresenceStartsEmpty(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/presence", nil)
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body["online"])
}

// The full register-then-check flow runs through the real wiring: session
// middleware, handler, and badger-backed user store.
func TestServer_RegisterFlow(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "success", body["status"])

	check := httptest.NewRequest(http.MethodGet, "/check_session", nil)
	for _, c := range rec.Result().Cookies() {
		check.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	s.E.ServeHTTP(rec, check)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "logged_in", body["status"])
	require.Equal(t, "alice", body["username"])
}
