package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ella-systems/ella-agent/internal/config"
	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/memory"
	"github.com/ella-systems/ella-agent/internal/store"
	"github.com/ella-systems/ella-agent/internal/ws"
)

func testServer(t *testing.T, apiKey string) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := engine.New(zerolog.Nop())
	hub := ws.NewHub(nil, zerolog.Nop())

	cfg := &config.Config{
		HTTPPort:       8080,
		APIKey:         apiKey,
		WSTokenSecret:  "test-secret",
		WSTokenTTL:     time.Hour,
		RateLimitRPS:   0,
		ReadyConfidence: 90,
	}

	s := New(Deps{
		Config:    cfg,
		Engine:    eng,
		Store:     st,
		Session:   memory.NewSessionStore(),
		Hub:       hub,
		Messenger: ws.NewMessenger(hub, st, zerolog.Nop()),
		Issuer:    NewTokenIssuer(cfg.WSTokenSecret, cfg.WSTokenTTL),
	}, zerolog.Nop())
	return s, st
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func TestCreateProjectReturnsToken(t *testing.T) {
	s, _ := testServer(t, "")

	resp := doJSON(t, s, http.MethodPost, "/api/projects",
		map[string]string{"name": "Acme", "description": "a todo app"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decode[projectResponse](t, resp)
	assert.Equal(t, "Acme", out.Name)
	assert.NotEmpty(t, out.ID)
	assert.NotEmpty(t, out.WSToken)
	assert.Equal(t, "planning", out.Stage)
}

func TestCreateProjectValidation(t *testing.T) {
	s, _ := testServer(t, "")

	resp := doJSON(t, s, http.MethodPost, "/api/projects", map[string]string{"description": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetProjectNotFound(t *testing.T) {
	s, _ := testServer(t, "")

	resp := doJSON(t, s, http.MethodGet, "/api/projects/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProjectReflectsEngineStage(t *testing.T) {
	s, _ := testServer(t, "")

	created := decode[projectResponse](t, doJSON(t, s, http.MethodPost, "/api/projects",
		map[string]string{"name": "Acme"}, nil))

	resp := doJSON(t, s, http.MethodGet, "/api/projects/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Project](t, resp)
	assert.Equal(t, "planning", got.Stage)
}

func TestPostEventAccepted(t *testing.T) {
	s, _ := testServer(t, "")

	created := decode[projectResponse](t, doJSON(t, s, http.MethodPost, "/api/projects",
		map[string]string{"name": "Acme"}, nil))

	resp := doJSON(t, s, http.MethodPost, "/api/projects/"+created.ID+"/events",
		map[string]any{"name": "user_response", "payload": map[string]string{"content": "hi"}}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, s, http.MethodPost, "/api/projects/"+created.ID+"/events",
		map[string]any{"payload": map[string]string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostAnswersValidation(t *testing.T) {
	s, _ := testServer(t, "")

	resp := doJSON(t, s, http.MethodPost, "/api/projects/p1/answers",
		map[string]any{"answers": map[string]string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyGuard(t *testing.T) {
	s, _ := testServer(t, "sekrit")

	resp := doJSON(t, s, http.MethodGet, "/api/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, s, http.MethodGet, "/api/projects", nil, map[string]string{"X-API-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, s, http.MethodGet, "/api/projects", nil, map[string]string{"Authorization": "Bearer sekrit"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Probes stay open.
	resp = doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatHistoryEndpoint(t *testing.T) {
	s, st := testServer(t, "")

	created := decode[projectResponse](t, doJSON(t, s, http.MethodPost, "/api/projects",
		map[string]string{"name": "Acme"}, nil))

	_, err := st.AppendChat(context.Background(), created.ID, store.ChatRoleAssistant, "hello")
	require.NoError(t, err)

	resp := doJSON(t, s, http.MethodGet, "/api/projects/"+created.ID+"/chat", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string][]store.ChatMessage](t, resp)
	require.Len(t, out["messages"], 1)
	assert.Equal(t, "hello", out["messages"][0].Content)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.IssueProjectToken("p1")
	require.NoError(t, err)

	subject, err := issuer.VerifyProjectToken(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", subject)
}

func TestTokenIssuerRejectsExpiredAndForeign(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)
	token, err := issuer.IssueProjectToken("p1")
	require.NoError(t, err)
	_, err = issuer.VerifyProjectToken(token)
	assert.Error(t, err)

	other := NewTokenIssuer("other-secret", time.Hour)
	token, err = other.IssueProjectToken("p1")
	require.NoError(t, err)
	_, err = NewTokenIssuer("secret", time.Hour).VerifyProjectToken(token)
	assert.Error(t, err)
}
