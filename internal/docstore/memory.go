// README: In-process document store used by tests and single-node development runs.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory keeps documents as JSON blobs so every read returns an independent
// copy. Transactions hold the store lock for their whole duration, which
// makes them serializable; callbacks must only use the Tx they are given.
type Memory struct {
	mu       sync.Mutex
	cols     map[string]map[string]*memDoc
	seq      int64
	watchers map[*memWatcher]struct{}
}

type memDoc struct {
	data []byte
	seq  int64
}

type memWatcher struct {
	collection string
	docID      string
	query      Query
	signal     chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		cols:     make(map[string]map[string]*memDoc),
		watchers: make(map[*memWatcher]struct{}),
	}
}

type memSnapshot struct {
	id     string
	data   []byte
	exists bool
}

func (s memSnapshot) ID() string   { return s.id }
func (s memSnapshot) Exists() bool { return s.exists }

func (s memSnapshot) DataTo(dst any) error {
	if !s.exists {
		return ErrNotFound
	}
	return json.Unmarshal(s.data, dst)
}

func (m *Memory) Get(ctx context.Context, collection, id string, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(doc.data, dst)
}

func (m *Memory) Documents(ctx context.Context, q Query) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(q, nil)
}

func (m *Memory) Create(ctx context.Context, collection, id string, doc any) error {
	return m.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Create(collection, id, doc)
	})
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc any) error {
	return m.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Set(collection, id, doc)
	})
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	tx := &memTx{m: m, writes: make(map[string]map[string]*memWrite)}
	if err := fn(ctx, tx); err != nil {
		m.mu.Unlock()
		return err
	}
	touched := m.commit(tx)
	watchers := m.interested(touched)
	m.mu.Unlock()

	for _, w := range watchers {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Memory) WatchDoc(ctx context.Context, collection, id string) (*Subscription, error) {
	return m.watch(ctx, &memWatcher{collection: collection, docID: id})
}

func (m *Memory) WatchQuery(ctx context.Context, q Query) (*Subscription, error) {
	return m.watch(ctx, &memWatcher{collection: q.Collection, query: q})
}

func (m *Memory) watch(parent context.Context, w *memWatcher) (*Subscription, error) {
	w.signal = make(chan struct{}, 1)
	w.signal <- struct{}{} // initial snapshot
	sub, ctx := newSubscription(parent)

	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer sub.finish()
		defer func() {
			m.mu.Lock()
			delete(m.watchers, w)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
			}
			if !sub.send(ctx, m.snapshotFor(w)) {
				return
			}
		}
	}()
	return sub, nil
}

func (m *Memory) snapshotFor(w *memWatcher) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.docID != "" {
		doc, ok := m.cols[w.collection][w.docID]
		if !ok {
			return Event{Docs: []Snapshot{memSnapshot{id: w.docID}}}
		}
		return Event{Docs: []Snapshot{memSnapshot{id: w.docID, data: doc.data, exists: true}}}
	}
	docs, err := m.query(w.query, nil)
	return Event{Docs: docs, Err: err}
}

func (m *Memory) interested(touched map[string]map[string]bool) []*memWatcher {
	var out []*memWatcher
	for w := range m.watchers {
		ids, ok := touched[w.collection]
		if !ok {
			continue
		}
		if w.docID != "" && !ids[w.docID] {
			continue
		}
		out = append(out, w)
	}
	return out
}

type memWrite struct {
	data   []byte
	delete bool
}

func (m *Memory) commit(tx *memTx) map[string]map[string]bool {
	touched := make(map[string]map[string]bool)
	for col, docs := range tx.writes {
		for id, w := range docs {
			if touched[col] == nil {
				touched[col] = make(map[string]bool)
			}
			touched[col][id] = true
			if w.delete {
				delete(m.cols[col], id)
				continue
			}
			if m.cols[col] == nil {
				m.cols[col] = make(map[string]*memDoc)
			}
			if existing, ok := m.cols[col][id]; ok {
				existing.data = w.data
				continue
			}
			m.seq++
			m.cols[col][id] = &memDoc{data: w.data, seq: m.seq}
		}
	}
	return touched
}

// query evaluates q against committed state overlaid with pending writes.
func (m *Memory) query(q Query, pending map[string]*memWrite) ([]Snapshot, error) {
	type row struct {
		id     string
		data   []byte
		fields map[string]any
		seq    int64
	}
	committed := m.cols[q.Collection]
	var rows []row
	seen := make(map[string]bool)
	add := func(id string, data []byte, seq int64) error {
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		for _, f := range q.Filters {
			ok, err := matches(fields, f)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		rows = append(rows, row{id: id, data: data, fields: fields, seq: seq})
		return nil
	}
	for id, w := range pending {
		seen[id] = true
		if w.delete {
			continue
		}
		seq := int64(1 << 62)
		if d, ok := committed[id]; ok {
			seq = d.seq
		}
		if err := add(id, w.data, seq); err != nil {
			return nil, err
		}
	}
	for id, d := range committed {
		if seen[id] {
			continue
		}
		if err := add(id, d.data, d.seq); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(lookup(rows[i].fields, q.OrderBy), lookup(rows[j].fields, q.OrderBy))
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].seq < rows[j].seq
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = memSnapshot{id: r.id, data: r.data, exists: true}
	}
	return out, nil
}

func lookup(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

func matches(fields map[string]any, f Filter) (bool, error) {
	want, err := normalize(f.Value)
	if err != nil {
		return false, err
	}
	got := lookup(fields, f.Field)
	switch f.Op {
	case "==":
		return reflect.DeepEqual(got, want), nil
	case "in":
		list, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("docstore: %q filter on %s needs a slice", f.Op, f.Field)
		}
		for _, v := range list {
			if reflect.DeepEqual(got, v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("docstore: unsupported operator %q", f.Op)
	}
}

// normalize runs v through JSON so it compares equal to decoded document fields.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	}
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}

type memTx struct {
	m      *Memory
	writes map[string]map[string]*memWrite
	wrote  bool
}

func (t *memTx) pending(collection, id string) (*memWrite, bool) {
	w, ok := t.writes[collection][id]
	return w, ok
}

func (t *memTx) exists(collection, id string) bool {
	if w, ok := t.pending(collection, id); ok {
		return !w.delete
	}
	_, ok := t.m.cols[collection][id]
	return ok
}

func (t *memTx) readGuard() error {
	if t.wrote {
		return fmt.Errorf("docstore: read after write in transaction")
	}
	return nil
}

func (t *memTx) Get(collection, id string, dst any) error {
	if err := t.readGuard(); err != nil {
		return err
	}
	if w, ok := t.pending(collection, id); ok {
		if w.delete {
			return ErrNotFound
		}
		return json.Unmarshal(w.data, dst)
	}
	doc, ok := t.m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(doc.data, dst)
}

func (t *memTx) Query(q Query) ([]Snapshot, error) {
	if err := t.readGuard(); err != nil {
		return nil, err
	}
	return t.m.query(q, t.writes[q.Collection])
}

func (t *memTx) put(collection, id string, w *memWrite) {
	t.wrote = true
	if t.writes[collection] == nil {
		t.writes[collection] = make(map[string]*memWrite)
	}
	t.writes[collection][id] = w
}

func (t *memTx) Create(collection, id string, doc any) error {
	if t.exists(collection, id) {
		return ErrAlreadyExists
	}
	return t.Set(collection, id, doc)
}

func (t *memTx) Set(collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.put(collection, id, &memWrite{data: data})
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	t.put(collection, id, &memWrite{delete: true})
	return nil
}
