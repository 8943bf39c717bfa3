package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
	"github.com/flocknet/messaging-platform/pkg/metrics"
)

// MessageView is the caller-facing state of a message stream: messages in
// chronological order plus whether older history probably exists.
type MessageView struct {
	Messages   []model.Message `json:"messages"`
	MoreLikely bool            `json:"more_likely"`
}

// MessageStream maintains a live window over the newest messages of one
// conversation plus on-demand backward pagination. The store delivers
// newest-first; callers always see oldest-first.
//
// Pagination state lives only in memory and only for one viewing session:
// Stop discards it. The cursor is the oldest currently-loaded message; every
// live snapshot (new activity) resets the cursor, the paged history, and the
// moreLikely signal.
type MessageStream struct {
	store          docstore.Store
	conversationID string
	window         int
	log            *logger.Logger

	// pageMu serializes LoadOlder calls so a slow fetch cannot overwrite
	// the cursor a faster one already advanced.
	pageMu sync.Mutex

	mu           sync.Mutex
	cancel       docstore.CancelFunc
	windowMsgs   []model.Message
	older        []model.Message
	cursor       *pageCursor
	moreLikely   bool
	gen          uint64
	listeners    map[int]func(MessageView)
	nextListener int
}

// pageCursor marks the oldest loaded message. The id disambiguates messages
// sharing a timestamp so a page boundary between them skips nothing.
type pageCursor struct {
	sentAt time.Time
	id     string
}

// NewMessageStream creates a stream for one conversation. windowSize <= 0
// falls back to DefaultWindowSize.
func NewMessageStream(store docstore.Store, conversationID string, windowSize int, log *logger.Logger) *MessageStream {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &MessageStream{
		store:          store,
		conversationID: conversationID,
		window:         windowSize,
		log:            log,
		listeners:      make(map[int]func(MessageView)),
	}
}

// Start opens the live window. Calling it while running restarts the
// subscription.
func (ms *MessageStream) Start() error {
	ms.Stop()

	q := docstore.Query{Collection: messagesCollection(ms.conversationID)}.
		OrderBy(model.FieldSentAt, true).
		WithLimit(ms.window)

	cancel, err := ms.store.Listen(q, ms.onSnapshot)
	if err != nil {
		return Wrap(CodeNetworkError, "failed to open message stream", err)
	}

	ms.mu.Lock()
	ms.cancel = cancel
	ms.mu.Unlock()
	metrics.LiveSubscriptionsActive.WithLabelValues("messages").Inc()
	return nil
}

// Stop detaches the live query and discards all window and pagination
// state. Safe to call when not running.
func (ms *MessageStream) Stop() {
	ms.mu.Lock()
	cancel := ms.cancel
	ms.cancel = nil
	ms.windowMsgs = nil
	ms.older = nil
	ms.cursor = nil
	ms.moreLikely = false
	ms.gen++
	ms.mu.Unlock()

	if cancel != nil {
		cancel()
		metrics.LiveSubscriptionsActive.WithLabelValues("messages").Dec()
	}
}

// View returns the current merged, chronological view.
func (ms *MessageStream) View() MessageView {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.viewLocked()
}

// OnChange registers a listener for view updates. Listeners run under the
// stream lock and must not call back into the stream.
func (ms *MessageStream) OnChange(fn func(MessageView)) func() {
	ms.mu.Lock()
	id := ms.nextListener
	ms.nextListener++
	ms.listeners[id] = fn
	ms.mu.Unlock()

	return func() {
		ms.mu.Lock()
		delete(ms.listeners, id)
		ms.mu.Unlock()
	}
}

// LoadOlder fetches the next page of history strictly before the cursor and
// returns it in chronological order. Without a cursor it is a no-op: no
// fetch, no error. Once a fetch comes back short, moreLikely latches false
// and further calls fetch nothing until new activity resets the stream.
func (ms *MessageStream) LoadOlder(ctx context.Context) ([]model.Message, error) {
	ms.pageMu.Lock()
	defer ms.pageMu.Unlock()

	ms.mu.Lock()
	if ms.cursor == nil || !ms.moreLikely {
		ms.mu.Unlock()
		metrics.PaginationFetches.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	gen := ms.gen
	cursor := *ms.cursor
	window := ms.window
	ms.mu.Unlock()

	q := docstore.Query{Collection: messagesCollection(ms.conversationID)}.
		OrderBy(model.FieldSentAt, true).
		WithLimit(window).
		After(cursor.sentAt, cursor.id)

	docs, err := ms.store.Query(ctx, q)
	if err != nil {
		metrics.PaginationFetches.WithLabelValues("error").Inc()
		return nil, Wrap(CodeNetworkError, "failed to load older messages", err)
	}

	page := ms.decodeChronological(docs)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.gen != gen {
		// The stream was reset while the fetch was in flight; this result
		// is stale and must not touch the cursor.
		metrics.PaginationFetches.WithLabelValues("stale").Inc()
		return nil, nil
	}

	if len(page) > 0 {
		ms.cursor = &pageCursor{sentAt: page[0].SentAt, id: page[0].ID}
		ms.older = append(append([]model.Message(nil), page...), ms.older...)
	}
	if len(docs) < window {
		ms.moreLikely = false
	}

	metrics.PaginationFetches.WithLabelValues("ok").Inc()
	ms.notifyLocked()
	return page, nil
}

func (ms *MessageStream) onSnapshot(snap docstore.Snapshot) {
	msgs := ms.decodeChronological(snap.Docs)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// New activity resets the viewing window: paged history and the sticky
	// moreLikely signal start over from the fresh snapshot.
	ms.windowMsgs = msgs
	ms.older = nil
	ms.gen++
	if len(msgs) > 0 {
		ms.cursor = &pageCursor{sentAt: msgs[0].SentAt, id: msgs[0].ID}
	} else {
		ms.cursor = nil
	}
	ms.moreLikely = len(snap.Docs) >= ms.window

	ms.notifyLocked()
}

// decodeChronological converts a newest-first result set into oldest-first
// typed messages, skipping malformed records.
func (ms *MessageStream) decodeChronological(docs []docstore.Document) []model.Message {
	out := make([]model.Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		msg, err := model.DecodeMessage(docs[i])
		if err != nil {
			metrics.SnapshotDecodeFailures.WithLabelValues("messages").Inc()
			ms.log.Warn("skipping malformed message", zap.String("id", docs[i].ID), zap.Error(err))
			continue
		}
		out = append(out, *msg)
	}
	return out
}

func (ms *MessageStream) viewLocked() MessageView {
	merged := make([]model.Message, 0, len(ms.older)+len(ms.windowMsgs))
	merged = append(merged, ms.older...)
	merged = append(merged, ms.windowMsgs...)
	return MessageView{Messages: merged, MoreLikely: ms.moreLikely}
}

func (ms *MessageStream) notifyLocked() {
	view := ms.viewLocked()
	for _, fn := range ms.listeners {
		fn(view)
	}
}
