package store

// CallStore is the call-record access shared by the tracer listener and the
// runtime oracle. Store writes straight to SQLite; BatchedStore buffers
// records in memory until they are committed.
type CallStore interface {
	PutCall(rec *CallRecord) error
	LatestCall(path string, line int) (*CallRecord, error)
	SourceHash(path string) (string, error)
}

// Compile-time check: *Store satisfies CallStore.
var _ CallStore = (*Store)(nil)
