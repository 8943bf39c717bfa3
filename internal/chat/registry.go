package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
	"github.com/flocknet/messaging-platform/pkg/metrics"
)

// RegistrySnapshot is one user's conversation projections: the active list,
// the archived list, and incoming pending requests.
type RegistrySnapshot struct {
	Active   []model.Conversation `json:"active"`
	Archived []model.Conversation `json:"archived"`
	Requests []model.Conversation `json:"requests"`
}

// Registry maintains a user's live conversation projections. One store
// subscription feeds all three lists; every snapshot is decoded defensively,
// deduplicated, filtered, and re-sorted by last activity before publication.
//
// All state mutation funnels through r.mu, so a listener callback and an
// optimistic local update can never interleave on the projected lists.
// Listeners are invoked under the lock and must not call back into the
// registry.
type Registry struct {
	store docstore.Store
	user  string
	log   *logger.Logger

	mu           sync.Mutex
	cancel       docstore.CancelFunc
	snap         RegistrySnapshot
	listeners    map[int]func(RegistrySnapshot)
	nextListener int
}

// NewRegistry creates a registry for one user.
func NewRegistry(store docstore.Store, userID string, log *logger.Logger) *Registry {
	return &Registry{
		store:     store,
		user:      userID,
		log:       log,
		listeners: make(map[int]func(RegistrySnapshot)),
	}
}

func (r *Registry) query() docstore.Query {
	return docstore.Query{Collection: conversationsCollection}.
		Where(model.FieldParticipants, docstore.OpArrayContains, r.user).
		OrderBy(model.FieldUpdatedAt, true)
}

// Subscribe opens the live query. Calling it while already subscribed tears
// down the prior subscription first, so callbacks are never delivered twice.
func (r *Registry) Subscribe() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
		metrics.LiveSubscriptionsActive.WithLabelValues("registry").Dec()
	}
	r.mu.Unlock()

	cancel, err := r.store.Listen(r.query(), r.onSnapshot)
	if err != nil {
		return Wrap(CodeNetworkError, "failed to subscribe to conversations", err)
	}

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	metrics.LiveSubscriptionsActive.WithLabelValues("registry").Inc()
	return nil
}

// Unsubscribe detaches the live query. Calling it while not subscribed is a
// no-op.
func (r *Registry) Unsubscribe() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		metrics.LiveSubscriptionsActive.WithLabelValues("registry").Dec()
	}
}

// Snapshot returns the current projections.
func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySnapshot(r.snap)
}

// SnapshotNow runs the projection pipeline against a one-shot query, for
// callers that want current state without a subscription.
func (r *Registry) SnapshotNow(ctx context.Context) (RegistrySnapshot, error) {
	docs, err := r.store.Query(ctx, r.query())
	if err != nil {
		return RegistrySnapshot{}, Wrap(CodeNetworkError, "failed to list conversations", err)
	}
	return r.project(docs), nil
}

// OnChange registers a listener for projection updates. The returned
// function removes it.
func (r *Registry) OnChange(fn func(RegistrySnapshot)) func() {
	r.mu.Lock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Registry) onSnapshot(snap docstore.Snapshot) {
	projected := r.project(snap.Docs)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = projected
	r.notifyLocked()
}

// project decodes, deduplicates, filters, and sorts raw documents into the
// three projections. A malformed record is logged and skipped; it never
// fails the subscription.
func (r *Registry) project(docs []docstore.Document) RegistrySnapshot {
	var out RegistrySnapshot
	seen := make(map[string]bool, len(docs))

	for _, doc := range docs {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true

		conv, err := model.DecodeConversation(doc)
		if err != nil {
			metrics.SnapshotDecodeFailures.WithLabelValues(conversationsCollection).Inc()
			r.log.Warn("skipping malformed conversation", zap.String("id", doc.ID), zap.Error(err))
			continue
		}

		switch {
		case conv.DeletedByUser(r.user):
			// Invisible everywhere until a new send resurfaces it.
		case conv.ArchivedByUser(r.user):
			out.Archived = append(out.Archived, *conv)
		case conv.Status == model.StatusPending && conv.RequesterID != r.user:
			// Incoming requests surface only through the requests listing.
			out.Requests = append(out.Requests, *conv)
		default:
			out.Active = append(out.Active, *conv)
		}
	}

	// Server-side ordering no longer holds once records are filtered out;
	// re-sort each projection by last activity.
	sortByActivity(out.Active)
	sortByActivity(out.Archived)
	sortByActivity(out.Requests)
	return out
}

func (r *Registry) notifyLocked() {
	for _, fn := range r.listeners {
		fn(copySnapshot(r.snap))
	}
}

// applyLocalArchive moves a conversation between the active and archived
// projections immediately, ahead of the confirming snapshot. The next
// snapshot reconciles regardless of what this guesses.
func (r *Registry) applyLocalArchive(conversationID string, archived bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to := &r.snap.Active, &r.snap.Archived
	if !archived {
		from, to = &r.snap.Archived, &r.snap.Active
	}

	moved := false
	kept := (*from)[:0]
	for _, conv := range *from {
		if conv.ID == conversationID {
			*to = append(*to, conv)
			moved = true
			continue
		}
		kept = append(kept, conv)
	}
	*from = kept

	if moved {
		sortByActivity(*to)
		r.notifyLocked()
	}
}

func sortByActivity(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return lastActivity(&convs[i]).After(lastActivity(&convs[j]))
	})
}

func lastActivity(c *model.Conversation) time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

func copySnapshot(s RegistrySnapshot) RegistrySnapshot {
	return RegistrySnapshot{
		Active:   append([]model.Conversation(nil), s.Active...),
		Archived: append([]model.Conversation(nil), s.Archived...),
		Requests: append([]model.Conversation(nil), s.Requests...),
	}
}
