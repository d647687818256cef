// ABOUTME: HTTP-level tests for the REST API using httptest and a real SQLite store
// ABOUTME: Covers auth enforcement, status code mapping, and conversation round trips

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadwell/threadwell/internal/auth"
	"github.com/threadwell/threadwell/internal/config"
)

var apiTestSecret = "gateway-api-test-secret-32-bytes"

type apiFixture struct {
	t      *testing.T
	server *httptest.Server
	token  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Auth.JWTSecret = apiTestSecret
	cfg.Sync.HeartbeatInterval = config.DefaultHeartbeatInterval
	cfg.Sync.WriteTimeout = config.DefaultWriteTimeout

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(g.Shutdown)

	server := httptest.NewServer(g.routes())
	t.Cleanup(server.Close)

	token, err := auth.NewJWTVerifier([]byte(apiTestSecret)).Generate("user-api", time.Hour)
	require.NoError(t, err)

	return &apiFixture{t: t, server: server, token: token}
}

// request sends an authenticated JSON request and returns the response.
func (f *apiFixture) request(method, path string, body any) *http.Response {
	f.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	return resp
}

// decode drains and closes the response body into dst.
func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

// createConversation seeds a conversation and returns its response body.
func (f *apiFixture) createConversation(name string, contents ...string) conversationResponse {
	f.t.Helper()

	msgs := make([]map[string]string, 0, len(contents))
	for _, c := range contents {
		msgs = append(msgs, map[string]string{"role": "user", "content": c})
	}
	resp := f.request(http.MethodPost, "/api/conversations", map[string]any{
		"name":     name,
		"messages": msgs,
	})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)

	var conv conversationResponse
	decode(f.t, resp, &conv)
	return conv
}

func (f *apiFixture) messages(ref string) []messageResponse {
	f.t.Helper()

	resp := f.request(http.MethodGet, "/api/conversations/"+url.PathEscape(ref)+"/messages", nil)
	require.Equal(f.t, http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []messageResponse `json:"messages"`
	}
	decode(f.t, resp, &body)
	return body.Messages
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/api/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndListConversations(t *testing.T) {
	f := newAPIFixture(t)

	conv := f.createConversation("project notes", "first entry", "second entry")
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "project notes", conv.Name)

	resp := f.request(http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversations []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"conversations"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, conv.ID, body.Conversations[0].ID)
	assert.Equal(t, "project notes", body.Conversations[0].Name)

	msgs := f.messages(conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first entry", msgs[0].Content)
	assert.Equal(t, "second entry", msgs[1].Content)
}

func TestCreateConversation_DuplicateNameConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.createConversation("taken")

	resp := f.request(http.MethodPost, "/api/conversations", map[string]any{"name": "taken"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListConversationsDetailed(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("detailed view")

	resp := f.request(http.MethodGet, "/api/conversations/detailed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversations map[string]struct {
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
			UpdatedAt string `json:"updated_at"`
		} `json:"conversations"`
	}
	decode(t, resp, &body)
	require.Contains(t, body.Conversations, conv.ID)

	detail := body.Conversations[conv.ID]
	assert.Equal(t, "detailed view", detail.Name)
	_, err := time.Parse(time.RFC3339, detail.CreatedAt)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, detail.UpdatedAt)
	assert.NoError(t, err)
}

func TestAppendMessage_ToDefaultRefCreatesConversation(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(http.MethodPost, "/api/conversations/-/messages", map[string]string{
		"role":    "user",
		"content": "sketch the onboarding flow for new users",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg messageResponse
	decode(t, resp, &msg)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "sketch the onboarding flow for new users", msg.Content)

	list := f.request(http.MethodGet, "/api/conversations", nil)
	var body struct {
		Conversations []struct {
			Name string `json:"name"`
		} `json:"conversations"`
	}
	decode(t, list, &body)
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, "sketch the onboarding flow for", body.Conversations[0].Name)
}

func TestAppendMessage_MissingContent(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("strict input")

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]string{"role": "user"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppendMessage_ByName(t *testing.T) {
	f := newAPIFixture(t)
	f.createConversation("bug triage")

	resp := f.request(http.MethodPost, "/api/conversations/"+url.PathEscape("bug triage")+"/messages",
		map[string]string{"role": "agent", "content": "crash reproduced on startup"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg messageResponse
	decode(t, resp, &msg)
	assert.Equal(t, "agent", msg.Role)
}

func TestListMessages_Pagination(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("paged", "m1", "m2", "m3", "m4", "m5")

	resp := f.request(http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=2&page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []messageResponse `json:"messages"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "m3", body.Messages[0].Content)
	assert.Equal(t, "m4", body.Messages[1].Content)
}

func TestListMessages_InvalidLimit(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("validated")

	resp := f.request(http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=many", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateMessage_ByID(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("editable", "original text")
	msgID := f.messages(conv.ID)[0].ID

	resp := f.request(http.MethodPatch, "/api/conversations/"+conv.ID+"/messages/"+msgID,
		map[string]string{"content": "revised text"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg messageResponse
	decode(t, resp, &msg)
	assert.Equal(t, "revised text", msg.Content)
	require.NotNil(t, msg.UpdatedBy)
	assert.Equal(t, "user-api", *msg.UpdatedBy)
	assert.NotNil(t, msg.UpdatedAt)
}

func TestUpdateMessage_UnknownID(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("sparse")

	resp := f.request(http.MethodPatch, "/api/conversations/"+conv.ID+"/messages/no-such-message",
		map[string]string{"content": "anything"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateMessage_ByContent(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("matched", "find me", "leave me")

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/messages/update",
		map[string]string{"old_content": "find me", "new_content": "found you"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg messageResponse
	decode(t, resp, &msg)
	assert.Equal(t, "found you", msg.Content)

	msgs := f.messages(conv.ID)
	assert.Equal(t, "found you", msgs[0].Content)
	assert.Equal(t, "leave me", msgs[1].Content)
}

func TestDeleteMessage_ByIDAndByContent(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("pruned", "keep", "drop by id", "drop by content")
	msgs := f.messages(conv.ID)

	resp := f.request(http.MethodDelete, "/api/conversations/"+conv.ID+"/messages/"+msgs[1].ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/messages/delete",
		map[string]string{"content": "drop by content"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	remaining := f.messages(conv.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, "keep", remaining[0].Content)
}

func TestMessageFeedback(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("rated", "was this helpful")
	msgID := f.messages(conv.ID)[0].ID

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/messages/"+msgID+"/feedback",
		map[string]bool{"received": true})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msgs := f.messages(conv.ID)
	assert.True(t, msgs[0].FeedbackReceived)
}

func TestRenameConversation(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("old name")

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/rename",
		map[string]string{"name": "new name"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "new name", body["name"])
}

func TestRenameConversation_AutoDerivesFromFirstUserMessage(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("temp title", "compare vendor quotes for the office move")

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/rename", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "compare vendor quotes for the", body["name"])
}

func TestForkConversation(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("mainline", "step one", "step two", "step three")
	msgs := f.messages(conv.ID)

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/fork",
		map[string]string{"message_id": msgs[1].ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fork conversationResponse
	decode(t, resp, &fork)
	assert.NotEqual(t, conv.ID, fork.ID)
	assert.Equal(t, "mainline (fork)", fork.Name)

	forked := f.messages(fork.ID)
	require.Len(t, forked, 2)
	assert.Equal(t, "step one", forked[0].Content)
	assert.Equal(t, "step two", forked[1].Content)
}

func TestForkConversation_UnknownMessage(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("no branch point")

	resp := f.request(http.MethodPost, "/api/conversations/"+conv.ID+"/fork",
		map[string]string{"message_id": "missing"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPinConversation_AffectsListOrder(t *testing.T) {
	f := newAPIFixture(t)
	f.createConversation("alpha")
	beta := f.createConversation("beta")

	order := 1
	resp := f.request(http.MethodPost, "/api/conversations/"+beta.ID+"/pin",
		map[string]*int{"pin_order": &order})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := f.request(http.MethodGet, "/api/conversations", nil)
	var body struct {
		Conversations []struct {
			Name string `json:"name"`
		} `json:"conversations"`
	}
	decode(t, list, &body)
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, "beta", body.Conversations[0].Name)
	assert.Equal(t, "alpha", body.Conversations[1].Name)
}

func TestDeleteConversation_Idempotent(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createConversation("ephemeral")

	for range 2 {
		resp := f.request(http.MethodDelete, "/api/conversations/"+conv.ID, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestMessages_UnknownConversation(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(http.MethodGet, "/api/conversations/"+url.PathEscape("no such log")+"/messages", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
