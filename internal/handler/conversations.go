// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flocknet/messaging-platform/internal/chat"
	"github.com/flocknet/messaging-platform/internal/middleware"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service  *chat.Service
	sessions *chat.Sessions
	logger   *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *chat.Service, sessions *chat.Sessions, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:  svc,
		sessions: sessions,
		logger:   log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.IsGroup {
		if err := middleware.ValidateGroupName(req.GroupName); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.CreateConversation(ctx, user, req)
	if err != nil {
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
// Returns the active projection; ?view=archived returns the archived one.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)

	snap, err := h.sessions.Get(user.ID).Registry().SnapshotNow(ctx)
	if err != nil {
		writeChatError(w, err)
		return
	}

	convs := snap.Active
	if r.URL.Query().Get("view") == "archived" {
		convs = snap.Archived
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, model.ConversationListResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Requests handles GET /api/v1/conversations/requests
func (h *ConversationHandler) Requests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)

	requests, err := h.service.PendingRequests(ctx, user)
	if err != nil {
		writeChatError(w, err)
		return
	}
	if requests == nil {
		requests = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, model.ConversationListResponse{
		Conversations: requests,
		Total:         len(requests),
	})
}

// Accept handles POST /api/v1/conversations/:id/accept
func (h *ConversationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Accept)
}

// Decline handles POST /api/v1/conversations/:id/decline
func (h *ConversationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Decline)
}

// MarkRequestRead handles POST /api/v1/conversations/:id/request-read
func (h *ConversationHandler) MarkRequestRead(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.MarkRequestRead)
}

// Pin handles POST /api/v1/conversations/:id/pin
func (h *ConversationHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Pin)
}

// Unpin handles POST /api/v1/conversations/:id/unpin
func (h *ConversationHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Unpin)
}

// Mute handles POST /api/v1/conversations/:id/mute
func (h *ConversationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Mute)
}

// Unmute handles POST /api/v1/conversations/:id/unmute
func (h *ConversationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Unmute)
}

// Archive handles POST /api/v1/conversations/:id/archive
func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Archive)
}

// Unarchive handles POST /api/v1/conversations/:id/unarchive
func (h *ConversationHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.service.Unarchive)
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, user, conversationID); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report handles POST /api/v1/conversations/:id/report
func (h *ConversationHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ReportSpam(ctx, user, conversationID, req.Reason); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolve is the shared shape of the id-only conversation operations.
func (h *ConversationHandler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, user model.Identity, id string) error) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := op(ctx, user, conversationID); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
