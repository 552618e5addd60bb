package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"opschat/auth"
	"opschat/domain"
	"opschat/observability"
	"opschat/ratelimit"
	"opschat/repositories"
	"opschat/runtime"
	"opschat/services"
)

// harness wires the full serving stack over an ephemeral store, so the
// handler tests exercise the same pipeline production runs.
type harness struct {
	ts     *httptest.Server
	tokens *auth.TokenManager
	users  repositories.UserDirectory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	messages := repositories.NewMessageRepository(db, log, nil)
	users := repositories.NewUserDirectory(db)
	registry := runtime.NewRegistry(log)
	limiter := ratelimit.NewLimiter(60, time.Minute)
	stats := observability.NewStats()
	service := services.NewChatService(log, messages, users, registry, limiter, stats)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)

	serverOpts := Options{
		AllowedOrigins:    []string{"*"},
		ConnBufferSize:    16,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	srv := New(log, service, registry, tokens, serverOpts)
	ts := httptest.NewServer(srv.Router(serverOpts))
	t.Cleanup(ts.Close)

	return &harness{ts: ts, tokens: tokens, users: users}
}

func (h *harness) seed(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	err := h.users.Upsert(repositories.User{ID: userID, Role: role, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	token, err := h.tokens.Generate(domain.Identity{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func (h *harness) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readFrame reads frames until one of the wanted type arrives, skipping
// unrelated traffic such as presence broadcasts.
func readFrame(t *testing.T, ws *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, ws.SetReadDeadline(deadline))
	for {
		var frame map[string]any
		require.NoError(t, ws.ReadJSON(&frame))
		if frame["type"] == wantType {
			return frame
		}
	}
}

func Test_Healthz_Is_Open(t *testing.T) {
	h := newHarness(t)
	resp, payload := h.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", payload["status"])
}

func Test_Missing_Or_Bad_Token_Is_Unauthorized(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp, payload := h.do(t, http.MethodGet, "/messages/alice", "", "")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Equal("unauthenticated", payload["error"])

	resp, _ = h.do(t, http.MethodGet, "/messages/alice", "garbage", "")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Post_Then_Get_Messages(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	h.seed(t, "alice", domain.RoleAdmin)

	resp, payload := h.do(t, http.MethodPost, "/messages/alice", carol, `{"text":"need a hand"}`)
	req.Equal(http.StatusCreated, resp.StatusCode)
	msg := payload["message"].(map[string]any)
	req.Equal("carol", msg["fromUserId"])
	req.Equal("alice", msg["toUserId"])
	req.Equal("need a hand", msg["text"])

	resp, payload = h.do(t, http.MethodGet, "/messages/alice", carol, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	messages := payload["messages"].([]any)
	req.Len(messages, 1)
}

func Test_Get_Messages_Empty_Conversation_Returns_Empty_Array(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)

	resp, payload := h.do(t, http.MethodGet, "/messages/alice", carol, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	messages, ok := payload["messages"].([]any)
	req.True(ok)
	req.Empty(messages)
}

func Test_Post_Message_Between_Users_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	h.seed(t, "bob", domain.RoleUser)

	resp, payload := h.do(t, http.MethodPost, "/messages/bob", carol, `{"text":"psst"}`)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal("forbidden", payload["error"])
}

func Test_Post_Message_To_Unknown_User(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)

	resp, payload := h.do(t, http.MethodPost, "/messages/ghost", carol, `{"text":"anyone"}`)
	req.Equal(http.StatusNotFound, resp.StatusCode)
	req.Equal("unknown_user", payload["error"])
}

func Test_Post_Message_Invalid_Text(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	h.seed(t, "alice", domain.RoleAdmin)

	resp, payload := h.do(t, http.MethodPost, "/messages/alice", carol, `{"text":""}`)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("invalid_text", payload["error"])

	long := strings.Repeat("x", domain.MaxTextLength+1)
	resp, payload = h.do(t, http.MethodPost, "/messages/alice", carol,
		fmt.Sprintf(`{"text":%q}`, long))
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("invalid_text", payload["error"])
}

func Test_Presence_Flips_With_Websocket_Lifecycle(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	alice := h.seed(t, "alice", domain.RoleAdmin)

	resp, payload := h.do(t, http.MethodGet, "/presence/alice", carol, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(false, payload["online"])

	ws := h.dialWS(t, alice)

	resp, payload = h.do(t, http.MethodGet, "/presence/alice", carol, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(true, payload["online"])

	req.NoError(ws.Close())
	req.Eventually(func() bool {
		_, payload := h.do(t, http.MethodGet, "/presence/alice", carol, "")
		return payload["online"] == false
	}, 5*time.Second, 50*time.Millisecond)
}

func Test_Live_Recipient_Receives_Message_Frame(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	alice := h.seed(t, "alice", domain.RoleAdmin)

	aliceWS := h.dialWS(t, alice)

	resp, _ := h.do(t, http.MethodPost, "/messages/alice", carol, `{"text":"ping"}`)
	req.Equal(http.StatusCreated, resp.StatusCode)

	frame := readFrame(t, aliceWS, "message")
	msg := frame["message"].(map[string]any)
	req.Equal("carol", msg["fromUserId"])
	req.Equal("ping", msg["text"])
	req.NotNil(msg["deliveredAt"])
}

func Test_Sender_Gets_Delivered_Frame_When_Offline_Recipient_Reconnects(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	alice := h.seed(t, "alice", domain.RoleAdmin)

	carolWS := h.dialWS(t, carol)

	// Recipient is offline; the message persists undelivered.
	resp, payload := h.do(t, http.MethodPost, "/messages/alice", carol, `{"text":"are you there"}`)
	req.Equal(http.StatusCreated, resp.StatusCode)
	msg := payload["message"].(map[string]any)
	req.Nil(msg["deliveredAt"])

	// Recipient connects: reconciliation stamps the message and notifies
	// the still connected sender.
	h.dialWS(t, alice)

	frame := readFrame(t, carolWS, "delivered")
	req.Equal(msg["_id"], frame["messageId"])
	req.Equal("alice", frame["to"])
	req.Equal("carol", frame["from"])
}

func Test_Read_Signal_Over_Socket_Notifies_Sender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	alice := h.seed(t, "alice", domain.RoleAdmin)

	carolWS := h.dialWS(t, carol)
	aliceWS := h.dialWS(t, alice)

	for i := 0; i < 3; i++ {
		resp, _ := h.do(t, http.MethodPost, "/messages/alice", carol, `{"text":"update"}`)
		req.Equal(http.StatusCreated, resp.StatusCode)
		readFrame(t, aliceWS, "message")
	}

	req.NoError(aliceWS.WriteJSON(map[string]string{"type": "read", "with": "carol"}))

	frame := readFrame(t, carolWS, "read")
	req.Equal("alice", frame["from"])
	req.Equal(float64(3), frame["modifiedCount"])
}

func Test_Socket_Message_Frame_Reaches_Recipient(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	carol := h.seed(t, "carol", domain.RoleUser)
	alice := h.seed(t, "alice", domain.RoleAdmin)

	carolWS := h.dialWS(t, carol)
	aliceWS := h.dialWS(t, alice)

	req.NoError(carolWS.WriteJSON(map[string]string{
		"type": "message", "to": "alice", "text": "over the socket",
	}))

	frame := readFrame(t, aliceWS, "message")
	msg := frame["message"].(map[string]any)
	req.Equal("over the socket", msg["text"])
	req.Equal("carol", msg["fromUserId"])
}

func Test_WS_Requires_Token(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
