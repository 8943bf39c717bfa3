package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flocknet/messaging-platform/internal/chat"
	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/middleware"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service  *chat.Service
	sessions *chat.Sessions
	store    docstore.Store
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *chat.Service, sessions *chat.Sessions, store docstore.Store, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service:  svc,
		sessions: sessions,
		store:    store,
		logger:   log,
	}
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.Send(ctx, user, conversationID, req)
	if err != nil {
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Window handles GET /api/v1/conversations/:id/messages
// Opens (or reuses) the caller's live message stream for the conversation
// and returns the current chronological window.
func (h *MessageHandler) Window(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetIdentity(r.Context())
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := h.openStream(r.Context(), user, conversationID)
	if err != nil {
		writeChatError(w, err)
		return
	}

	view := stream.View()
	writeJSON(w, http.StatusOK, model.MessageWindowResponse{
		Messages:   view.Messages,
		MoreLikely: view.MoreLikely,
	})
}

// LoadOlder handles POST /api/v1/conversations/:id/messages/older
// Returns the next older page. With no open stream or no cursor this is an
// empty success, never an error.
func (h *MessageHandler) LoadOlder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream := h.sessions.Get(user.ID).Stream(conversationID)
	if stream == nil {
		writeJSON(w, http.StatusOK, model.MessageWindowResponse{Messages: []model.Message{}})
		return
	}

	page, err := stream.LoadOlder(ctx)
	if err != nil {
		writeChatError(w, err)
		return
	}
	if page == nil {
		page = []model.Message{}
	}

	writeJSON(w, http.StatusOK, model.MessageWindowResponse{
		Messages:   page,
		MoreLikely: stream.View().MoreLikely,
	})
}

// Close handles POST /api/v1/conversations/:id/close
// Tears down the caller's message stream for the conversation.
func (h *MessageHandler) Close(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetIdentity(r.Context())
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.sessions.Get(user.ID).CloseStream(conversationID)
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles POST /api/v1/conversations/:id/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.MarkRead(ctx, user, conversationID, req.MessageIDs); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Star handles POST /api/v1/conversations/:id/messages/:messageID/star
func (h *MessageHandler) Star(w http.ResponseWriter, r *http.Request) {
	h.messageOp(w, r, h.service.Star)
}

// Unstar handles POST /api/v1/conversations/:id/messages/:messageID/unstar
func (h *MessageHandler) Unstar(w http.ResponseWriter, r *http.Request) {
	h.messageOp(w, r, h.service.Unstar)
}

// Pin handles POST /api/v1/conversations/:id/messages/:messageID/pin
func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.messageOp(w, r, h.service.PinMessage)
}

// Unpin handles POST /api/v1/conversations/:id/messages/:messageID/unpin
func (h *MessageHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.messageOp(w, r, h.service.UnpinMessage)
}

// Delete handles DELETE /api/v1/conversations/:id/messages/:messageID
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.messageOp(w, r, h.service.DeleteMessage)
}

// React handles POST /api/v1/conversations/:id/messages/:messageID/reactions
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	h.reactionOp(w, r, h.service.React)
}

// Unreact handles DELETE /api/v1/conversations/:id/messages/:messageID/reactions
func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	h.reactionOp(w, r, h.service.Unreact)
}

// Edit handles PUT /api/v1/conversations/:id/messages/:messageID
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID, messageID, ok := h.messageParams(w, r)
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.EditMessage(ctx, user, conversationID, messageID, req.Text); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) openStream(ctx context.Context, user model.Identity, conversationID string) (*chat.MessageStream, error) {
	// Membership check before opening a live window.
	if _, _, err := h.service.CanSend(ctx, user, conversationID); err != nil {
		return nil, err
	}
	return h.sessions.Get(user.ID).OpenStream(h.store, conversationID, h.sessions.WindowSize(), h.logger)
}

func (h *MessageHandler) messageParams(w http.ResponseWriter, r *http.Request) (conversationID, messageID string, ok bool) {
	conversationID = chi.URLParam(r, "id")
	messageID = chi.URLParam(r, "messageID")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return conversationID, messageID, true
}

func (h *MessageHandler) messageOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, user model.Identity, conversationID, messageID string) error) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID, messageID, ok := h.messageParams(w, r)
	if !ok {
		return
	}

	if err := op(ctx, user, conversationID, messageID); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) reactionOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, user model.Identity, conversationID, messageID, emoji string) error) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID, messageID, ok := h.messageParams(w, r)
	if !ok {
		return
	}

	var req model.ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := op(ctx, user, conversationID, messageID, req.Emoji); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
