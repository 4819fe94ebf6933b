package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process backend. It serves as the test double for the
// Postgres backend and as the fallback when no DATABASE_URL is configured.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]*memoryDoc
	subs  map[int]*memorySub
	next  int
	clock func() time.Time
}

type memoryDoc struct {
	data      map[string]any
	updatedAt time.Time
}

type memorySub struct {
	path       string
	collection bool
	onChange   func(Snapshot)
	onList     func([]Snapshot)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]*memoryDoc),
		subs:  make(map[int]*memorySub),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock. Test hook.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path)
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any, merge bool) error {
	doc, err := normalizeMap(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	existing, ok := s.docs[path]
	if merge && ok {
		mergeTop(existing.data, doc)
		existing.updatedAt = s.clock()
	} else {
		s.docs[path] = &memoryDoc{data: doc, updatedAt: s.clock()}
	}
	deliveries := s.notifyLocked(path)
	s.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}
	if err := applyFields(doc.data, fields); err != nil {
		s.mu.Unlock()
		return err
	}
	doc.updatedAt = s.clock()
	deliveries := s.notifyLocked(path)
	s.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

func (s *MemoryStore) AppendToSet(ctx context.Context, path, field string, value any) error {
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("append to %s: %w", path, ErrNotFound)
	}
	appended, err := appendUnique(doc.data, field, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	var deliveries []func()
	if appended {
		doc.updatedAt = s.clock()
		deliveries = s.notifyLocked(path)
	}
	s.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

// RunTransaction holds the store lock for the duration of fn, so the
// read-modify-write is serialized against every other write. fn must operate
// only through the Tx handle.
func (s *MemoryStore) RunTransaction(ctx context.Context, path string, fn func(Tx) error) error {
	s.mu.Lock()
	tx := &memoryTx{store: s, path: path}
	if doc, ok := s.docs[path]; ok {
		staged, err := deepCopy(doc.data)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		tx.staged = staged
		tx.exists = true
	}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	var deliveries []func()
	if tx.dirty {
		s.docs[path] = &memoryDoc{data: tx.staged, updatedAt: s.clock()}
		deliveries = s.notifyLocked(path)
	}
	s.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

func (s *MemoryStore) Subscribe(path string, onChange func(Snapshot), onError func(error)) (CancelFunc, error) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = &memorySub{path: path, onChange: onChange}
	initial, err := s.snapshotLocked(path)
	s.mu.Unlock()
	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		onChange(initial)
	}
	return s.cancelFunc(id), nil
}

func (s *MemoryStore) CollectionSubscribe(prefix string, onChange func([]Snapshot), onError func(error)) (CancelFunc, error) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = &memorySub{path: prefix, collection: true, onList: onChange}
	initial, err := s.childrenLocked(prefix)
	s.mu.Unlock()
	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else {
		onChange(initial)
	}
	return s.cancelFunc(id), nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenLocked(prefix)
}

func (s *MemoryStore) ServerTime(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock(), nil
}

// Delete removes a document. The store interface has no delete; this exists
// so tests can simulate the externally-caused bloc deletion that every view
// must tolerate.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	delete(s.docs, path)
	deliveries := s.notifyLocked(path)
	s.mu.Unlock()

	for _, deliver := range deliveries {
		deliver()
	}
	return nil
}

func (s *MemoryStore) cancelFunc(id int) CancelFunc {
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *MemoryStore) snapshotLocked(path string) (Snapshot, error) {
	doc, ok := s.docs[path]
	if !ok {
		return Snapshot{Path: path}, nil
	}
	raw, err := encodeDoc(doc.data)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Exists: true, Data: raw, UpdatedAt: doc.updatedAt}, nil
}

func (s *MemoryStore) childrenLocked(prefix string) ([]Snapshot, error) {
	var paths []string
	for path := range s.docs {
		if parentOf(path) == prefix {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	children := make([]Snapshot, 0, len(paths))
	for _, path := range paths {
		snap, err := s.snapshotLocked(path)
		if err != nil {
			return nil, err
		}
		children = append(children, snap)
	}
	return children, nil
}

// notifyLocked gathers callbacks for every subscription touched by a change
// to path. The caller invokes them after releasing the lock, so callbacks may
// re-enter the store.
func (s *MemoryStore) notifyLocked(path string) []func() {
	var deliveries []func()
	parent := parentOf(path)
	for _, sub := range s.subs {
		switch {
		case sub.collection && sub.path == parent:
			list, err := s.childrenLocked(sub.path)
			if err != nil {
				continue
			}
			onList := sub.onList
			deliveries = append(deliveries, func() { onList(list) })
		case !sub.collection && sub.path == path:
			snap, err := s.snapshotLocked(path)
			if err != nil {
				continue
			}
			onChange := sub.onChange
			deliveries = append(deliveries, func() { onChange(snap) })
		}
	}
	return deliveries
}

type memoryTx struct {
	store  *MemoryStore
	path   string
	staged map[string]any
	exists bool
	dirty  bool
}

func (tx *memoryTx) Get() (Snapshot, error) {
	if !tx.exists {
		return Snapshot{Path: tx.path}, nil
	}
	raw, err := encodeDoc(tx.staged)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: tx.path, Exists: true, Data: raw, UpdatedAt: tx.store.clock()}, nil
}

func (tx *memoryTx) Set(value any, merge bool) error {
	doc, err := normalizeMap(value)
	if err != nil {
		return err
	}
	if merge && tx.exists {
		mergeTop(tx.staged, doc)
	} else {
		tx.staged = doc
	}
	tx.exists = true
	tx.dirty = true
	return nil
}

func (tx *memoryTx) Update(fields map[string]any) error {
	if !tx.exists {
		return fmt.Errorf("update %s: %w", tx.path, ErrNotFound)
	}
	if err := applyFields(tx.staged, fields); err != nil {
		return err
	}
	tx.dirty = true
	return nil
}

func deepCopy(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	return out, nil
}
