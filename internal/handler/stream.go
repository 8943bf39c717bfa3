package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/chat"
	"github.com/flocknet/messaging-platform/internal/middleware"
	"github.com/flocknet/messaging-platform/internal/model"
	natsclient "github.com/flocknet/messaging-platform/internal/nats"
	"github.com/flocknet/messaging-platform/pkg/logger"
	"github.com/flocknet/messaging-platform/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler handles SSE streaming endpoints: the live conversation
// registry, the live message window, and typing indicators.
type StreamHandler struct {
	service  *chat.Service
	sessions *chat.Sessions
	messages *MessageHandler
	nats     *natsclient.Client
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler. nats may be nil when no
// broker is configured; typing endpoints then report unavailable.
func NewStreamHandler(svc *chat.Service, sessions *chat.Sessions, messages *MessageHandler, nats *natsclient.Client, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service:  svc,
		sessions: sessions,
		messages: messages,
		nats:     nats,
		logger:   log,
	}
}

// Conversations handles GET /api/v1/conversations/stream
// Streams the caller's registry projections: one "registry" event per
// change, heartbeats in between.
func (h *StreamHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	registry := h.sessions.Get(user.ID).Registry()
	if err := registry.Subscribe(); err != nil {
		h.logger.Error("failed to subscribe registry", zap.String("user_id", user.ID), zap.Error(err))
		sendSSEEvent(w, flusher, "error", map[string]string{"error": "subscription failed"})
		return
	}

	updates := make(chan chat.RegistrySnapshot, 1)
	removeListener := registry.OnChange(func(snap chat.RegistrySnapshot) {
		pushLatest(updates, snap)
	})
	defer func() {
		removeListener()
		registry.Unsubscribe()
	}()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "registry", registry.Snapshot())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("registry stream client disconnected", zap.String("user_id", user.ID))
			return
		case snap := <-updates:
			sendSSEEvent(w, flusher, "registry", snap)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"ts": time.Now()})
		}
	}
}

// Messages handles GET /api/v1/conversations/:id/stream
// Streams the live message window of one conversation. The stream is torn
// down when the client disconnects.
func (h *StreamHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := h.messages.openStream(ctx, user, conversationID)
	if err != nil {
		writeChatError(w, err)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	updates := make(chan chat.MessageView, 1)
	removeListener := stream.OnChange(func(view chat.MessageView) {
		pushLatest(updates, view)
	})
	defer func() {
		removeListener()
		// View exit ends the viewing session and its pagination state.
		h.sessions.Get(user.ID).CloseStream(conversationID)
	}()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "window", stream.View())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("message stream client disconnected",
				zap.String("user_id", user.ID),
				zap.String("conversation_id", conversationID),
			)
			return
		case view := <-updates:
			sendSSEEvent(w, flusher, "window", view)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"ts": time.Now()})
		}
	}
}

// Typing handles GET /api/v1/conversations/:id/typing
// Streams typing indicators for one conversation.
func (h *StreamHandler) Typing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.nats == nil {
		writeError(w, http.StatusServiceUnavailable, "typing indicators unavailable")
		return
	}
	if _, _, err := h.service.CanSend(ctx, user, conversationID); err != nil {
		writeChatError(w, err)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	events := make(chan model.TypingEvent, 8)
	unsubscribe, err := h.nats.SubscribeTyping(conversationID, func(event model.TypingEvent) {
		if event.UserID == user.ID {
			return
		}
		select {
		case events <- event:
		default:
		}
	})
	if err != nil {
		sendSSEEvent(w, flusher, "error", map[string]string{"error": "subscription failed"})
		return
	}
	defer unsubscribe()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			sendSSEEvent(w, flusher, "typing", event)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"ts": time.Now()})
		}
	}
}

// PublishTyping handles POST /api/v1/conversations/:id/typing
func (h *StreamHandler) PublishTyping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetIdentity(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.nats == nil {
		writeError(w, http.StatusServiceUnavailable, "typing indicators unavailable")
		return
	}
	if _, _, err := h.service.CanSend(ctx, user, conversationID); err != nil {
		writeChatError(w, err)
		return
	}

	if err := h.nats.PublishTyping(conversationID, user.ID); err != nil {
		h.logger.Warn("failed to publish typing event", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to publish typing event")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}

// pushLatest replaces any queued value so a slow client only ever sees the
// newest state.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
