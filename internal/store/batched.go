package store

import "sync"

type siteKey struct {
	path string
	line int
}

// BatchedStore buffers call records in memory, keeping only the latest per
// call site, so a chatty traced process does not write to SQLite per call.
// LatestCall sees buffered records before committed ones.
//
// Thread safety: the mutex protects the buffer. The tracer listener writes
// from its own goroutine while callers read.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	pending map[siteKey]CallRecord
	order   []siteKey
}

// Compile-time check: *BatchedStore satisfies CallStore.
var _ CallStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:   s,
		pending: make(map[siteKey]CallRecord),
	}
}

func (b *BatchedStore) PutCall(rec *CallRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := siteKey{rec.Path, rec.Line}
	if _, ok := b.pending[key]; !ok {
		b.order = append(b.order, key)
	}
	b.pending[key] = *rec
	return nil
}

func (b *BatchedStore) LatestCall(path string, line int) (*CallRecord, error) {
	b.mu.Lock()
	rec, ok := b.pending[siteKey{path, line}]
	b.mu.Unlock()
	if ok {
		return &rec, nil
	}
	return b.store.LatestCall(path, line)
}

// SourceHash reads through to the backing store.
func (b *BatchedStore) SourceHash(path string) (string, error) {
	return b.store.SourceHash(path)
}

// Paths returns the distinct files of the buffered records in first-seen
// order.
func (b *BatchedStore) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	var paths []string
	for _, key := range b.order {
		if !seen[key.path] {
			seen[key.path] = true
			paths = append(paths, key.path)
		}
	}
	return paths
}

// Len returns the number of buffered call sites.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// drain returns the buffered records in first-seen order and empties the
// buffer.
func (b *BatchedStore) drain() []CallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs := make([]CallRecord, 0, len(b.order))
	for _, key := range b.order {
		recs = append(recs, b.pending[key])
	}
	b.pending = make(map[siteKey]CallRecord)
	b.order = nil
	return recs
}
