package store

import "fmt"

// CommitBatch writes every buffered record of batch into SQLite within a
// single transaction and empties the batch. A failed commit leaves the
// database unchanged and the records are lost.
func (s *Store) CommitBatch(batch *BatchedStore) (int, error) {
	recs := batch.drain()
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range recs {
		if err := putCall(tx, &recs[i]); err != nil {
			return 0, fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(recs), nil
}
