package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/chat"
	"github.com/flocknet/messaging-platform/internal/directory"
	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/middleware"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

const testJWTSecret = "test-secret"

type testAPI struct {
	router   *chi.Mux
	store    *docstore.Memory
	sessions *chat.Sessions
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := docstore.NewMemory()
	log := logger.NewNop()
	sessions := chat.NewSessions(store, 10, log)
	svc := chat.NewService(store, directory.NewStoreDirectory(store), nil, sessions, log)

	conversations := NewConversationHandler(svc, sessions, log)
	messages := NewMessageHandler(svc, sessions, store, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testJWTSecret))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversations.Create)
			r.Get("/", conversations.List)
			r.Get("/requests", conversations.Requests)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", conversations.Delete)
				r.Post("/accept", conversations.Accept)
				r.Post("/decline", conversations.Decline)
				r.Post("/archive", conversations.Archive)
				r.Post("/unarchive", conversations.Unarchive)
				r.Post("/report", conversations.Report)

				r.Get("/messages", messages.Window)
				r.Post("/messages", messages.Send)
				r.Post("/messages/older", messages.LoadOlder)
				r.Post("/close", messages.Close)
				r.Post("/read", messages.MarkRead)
			})
		})
	})

	return &testAPI{router: r, store: store, sessions: sessions}
}

func (a *testAPI) seedUser(t *testing.T, id, name string, following ...string) {
	t.Helper()
	data := map[string]any{
		"displayName":           name,
		"allowsMessageRequests": true,
	}
	if len(following) > 0 {
		data["following"] = following
	}
	require.NoError(t, a.store.Create(context.Background(), "users/"+id, data))
}

func (a *testAPI) token(t *testing.T, subject, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		DisplayName: name,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = bytes.NewReader([]byte("{}"))
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeConversation(t *testing.T, rec *httptest.ResponseRecorder) model.Conversation {
	t.Helper()
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv
}

func TestConversationRequestFlow(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "Alice")
	api.seedUser(t, "bob", "Bob")
	aliceTok := api.token(t, "alice", "Alice")
	bobTok := api.token(t, "bob", "Bob")

	// Alice opens a conversation with a stranger: it lands pending.
	rec := api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeConversation(t, rec)
	assert.Equal(t, model.StatusPending, conv.Status)

	// One message is allowed while pending.
	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{Text: "hi bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The second is not.
	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{Text: "hello??"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bob sees the incoming request.
	rec = api.do(t, bobTok, http.MethodGet, "/api/v1/conversations/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.ConversationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, conv.ID, list.Conversations[0].ID)

	// Bob accepts; Alice may send again.
	rec = api.do(t, bobTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/accept", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{Text: "thanks!"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestMessageWindowEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "Alice", "bob")
	api.seedUser(t, "bob", "Bob", "alice")
	aliceTok := api.token(t, "alice", "Alice")

	rec := api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decodeConversation(t, rec)

	for _, text := range []string{"one", "two"} {
		rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{Text: text})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// The window fills from the live subscription shortly after opening.
	require.Eventually(t, func() bool {
		rec = api.do(t, aliceTok, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var window model.MessageWindowResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &window); err != nil {
			return false
		}
		return len(window.Messages) == 2 && window.Messages[0].Text == "one"
	}, 2*time.Second, 20*time.Millisecond)

	// No cursor pressure with only two messages: older page is empty.
	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages/older", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var older model.MessageWindowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &older))
	assert.Empty(t, older.Messages)
	assert.False(t, older.MoreLikely)

	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/close", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestArchiveEndpointsMoveBetweenViews(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "Alice", "bob")
	api.seedUser(t, "bob", "Bob", "alice")
	aliceTok := api.token(t, "alice", "Alice")

	rec := api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decodeConversation(t, rec)

	rec = api.do(t, aliceTok, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/archive", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, aliceTok, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active model.ConversationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, 0, active.Total)

	rec = api.do(t, aliceTok, http.MethodGet, "/api/v1/conversations?view=archived", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var archived model.ConversationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &archived))
	require.Equal(t, 1, archived.Total)
	assert.Equal(t, conv.ID, archived.Conversations[0].ID)
}

func TestEndpointsRejectBadIDs(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", "Alice")
	tok := api.token(t, "alice", "Alice")

	rec := api.do(t, tok, http.MethodPost, "/api/v1/conversations/not-a-uuid/archive", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, tok, http.MethodDelete, "/api/v1/conversations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndpointsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
