package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store used by tests and local development. It
// implements the full contract: atomic batches, field transforms, filtered
// ordered queries, and live subscriptions that redeliver the complete result
// set on every change to a matching collection.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	seq         map[string]uint64
	nextSeq     uint64
	subs        map[int]*memSub
	nextSubID   int
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates a store with an injected clock. Tests use this
// to control server timestamps.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
		seq:         make(map[string]uint64),
		subs:        make(map[int]*memSub),
		now:         now,
	}
}

type memSub struct {
	id   int
	q    Query
	fn   func(Snapshot)
	mu   sync.Mutex
	next *Snapshot
	wake chan struct{}
	done chan struct{}
}

// Get returns a deep copy of the document at path.
func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	collection, id, ok := splitPath(path)
	if !ok {
		return Document{}, fmt.Errorf("invalid document path %q", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.collections[collection][id]
	if !exists {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: copyMap(data)}, nil
}

// Create writes a new document, failing if one already exists at path.
func (m *Memory) Create(ctx context.Context, path string, data map[string]any) error {
	return m.Batch().Create(path, data).Commit(ctx)
}

// Update applies field updates to an existing document.
func (m *Memory) Update(ctx context.Context, path string, updates map[string]any) error {
	return m.Batch().Update(path, updates).Commit(ctx)
}

// Query evaluates q against current state.
func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluate(q), nil
}

// Listen registers a live subscription. The callback receives an initial
// snapshot, then one snapshot per committed change to the collection.
// Callbacks for one subscription are serialized on a dedicated goroutine.
func (m *Memory) Listen(q Query, fn func(Snapshot)) (CancelFunc, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("listen requires a collection")
	}

	s := &memSub{
		q:    q,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	s.id = m.nextSubID
	m.nextSubID++
	m.subs[s.id] = s
	initial := Snapshot{Docs: m.evaluate(q)}
	m.mu.Unlock()

	go s.run()
	s.push(initial)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, s.id)
			m.mu.Unlock()
			close(s.done)
		})
	}
	return cancel, nil
}

// Batch starts an atomic write batch.
func (m *Memory) Batch() Batch {
	return &memBatch{store: m}
}

func (s *memSub) push(snap Snapshot) {
	s.mu.Lock()
	s.next = &snap
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memSub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for {
				s.mu.Lock()
				snap := s.next
				s.next = nil
				s.mu.Unlock()
				if snap == nil {
					break
				}
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(*snap)
			}
		}
	}
}

type batchOp struct {
	create     bool
	collection string
	id         string
	data       map[string]any
}

type memBatch struct {
	store *Memory
	ops   []batchOp
	err   error
}

func (b *memBatch) Create(path string, data map[string]any) Batch {
	b.add(path, data, true)
	return b
}

func (b *memBatch) Update(path string, updates map[string]any) Batch {
	b.add(path, updates, false)
	return b
}

func (b *memBatch) add(path string, data map[string]any, create bool) {
	collection, id, ok := splitPath(path)
	if !ok {
		if b.err == nil {
			b.err = fmt.Errorf("invalid document path %q", path)
		}
		return
	}
	b.ops = append(b.ops, batchOp{create: create, collection: collection, id: id, data: data})
}

// Commit applies every operation under one lock acquisition. Validation runs
// before any mutation so a failed batch leaves no partial state.
func (b *memBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	m := b.store
	m.mu.Lock()

	for _, op := range b.ops {
		_, exists := m.collections[op.collection][op.id]
		if op.create && exists {
			m.mu.Unlock()
			return fmt.Errorf("%s/%s: %w", op.collection, op.id, ErrAlreadyExists)
		}
		if !op.create && !exists {
			m.mu.Unlock()
			return fmt.Errorf("%s/%s: %w", op.collection, op.id, ErrNotFound)
		}
	}

	commitTime := m.now()
	touched := make(map[string]bool, len(b.ops))

	for _, op := range b.ops {
		if m.collections[op.collection] == nil {
			m.collections[op.collection] = make(map[string]map[string]any)
		}
		doc := m.collections[op.collection][op.id]
		if doc == nil {
			doc = make(map[string]any)
			m.collections[op.collection][op.id] = doc
			m.nextSeq++
			m.seq[op.collection+"/"+op.id] = m.nextSeq
		}
		applyFields(doc, op.data, commitTime)
		touched[op.collection] = true
	}

	var notify []func()
	for _, s := range m.subs {
		if !touched[s.q.Collection] {
			continue
		}
		snap := Snapshot{Docs: m.evaluate(s.q)}
		sub := s
		notify = append(notify, func() { sub.push(snap) })
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return nil
}

// evaluate runs a query against current state; caller holds m.mu.
func (m *Memory) evaluate(q Query) []Document {
	var out []Document
	for id, data := range m.collections[q.Collection] {
		if m.matches(data, q.Filters) {
			out = append(out, Document{ID: id, Data: data})
		}
	}

	if q.OrderField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			vi := lookupField(out[i].Data, q.OrderField)
			vj := lookupField(out[j].Data, q.OrderField)
			c := compareValues(vi, vj)
			if c == 0 {
				si := m.seq[q.Collection+"/"+out[i].ID]
				sj := m.seq[q.Collection+"/"+out[j].ID]
				if q.Descending {
					return si > sj
				}
				return si < sj
			}
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.StartAfter != nil && q.OrderField != "" {
		cursorSeq, cursorKnown := m.seq[q.Collection+"/"+q.StartAfter.DocID]
		kept := out[:0]
		for _, doc := range out {
			c := compareValues(lookupField(doc.Data, q.OrderField), q.StartAfter.Value)
			if c == 0 {
				// Equal ordering values resolve by the same insertion-seq
				// tie-break the sort uses, anchored at the cursor document.
				if !cursorKnown {
					continue
				}
				seq := m.seq[q.Collection+"/"+doc.ID]
				if (q.Descending && seq < cursorSeq) || (!q.Descending && seq > cursorSeq) {
					kept = append(kept, doc)
				}
				continue
			}
			if (q.Descending && c < 0) || (!q.Descending && c > 0) {
				kept = append(kept, doc)
			}
		}
		out = kept
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	copies := make([]Document, len(out))
	for i, doc := range out {
		copies[i] = Document{ID: doc.ID, Data: copyMap(doc.Data)}
	}
	return copies
}

func (m *Memory) matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v := lookupField(data, f.Field)
		switch f.Op {
		case OpEqual:
			if compareValues(v, f.Value) != 0 {
				return false
			}
		case OpLess:
			if compareValues(v, f.Value) >= 0 {
				return false
			}
		case OpGreater:
			if compareValues(v, f.Value) <= 0 {
				return false
			}
		case OpArrayContains:
			if !arrayContains(v, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// applyFields writes updates into doc, resolving transforms. Dotted field
// names address nested maps, creating intermediates as needed.
func applyFields(doc map[string]any, updates map[string]any, commitTime time.Time) {
	for field, value := range updates {
		parent := doc
		parts := strings.Split(field, ".")
		for _, part := range parts[:len(parts)-1] {
			child, ok := parent[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				parent[part] = child
			}
			parent = child
		}
		key := parts[len(parts)-1]

		switch t := value.(type) {
		case incrementTransform:
			parent[key] = asInt64(parent[key]) + t.delta
		case arrayUnionTransform:
			arr, _ := parent[key].([]any)
			for _, elem := range t.elems {
				if !arrayContains(arr, elem) {
					arr = append(arr, copyValue(elem))
				}
			}
			parent[key] = arr
		case arrayRemoveTransform:
			arr, _ := parent[key].([]any)
			kept := arr[:0]
			for _, existing := range arr {
				removed := false
				for _, elem := range t.elems {
					if reflect.DeepEqual(existing, elem) {
						removed = true
						break
					}
				}
				if !removed {
					kept = append(kept, existing)
				}
			}
			parent[key] = kept
		case serverTimestampTransform:
			parent[key] = commitTime
		case deleteFieldTransform:
			delete(parent, key)
		default:
			parent[key] = copyValue(value)
		}
	}
}

func lookupField(data map[string]any, field string) any {
	parts := strings.Split(field, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func arrayContains(v, elem any) bool {
	switch arr := v.(type) {
	case []any:
		for _, existing := range arr {
			if reflect.DeepEqual(existing, elem) {
				return true
			}
		}
	case []string:
		s, ok := elem.(string)
		if !ok {
			return false
		}
		for _, existing := range arr {
			if existing == s {
				return true
			}
		}
	}
	return false
}

// compareValues orders two field values: nil first, then by type-specific
// comparison. Mixed numeric types compare numerically.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	if na, ok := asFloat(a); ok {
		if nb, ok := asFloat(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}

	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb)
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
