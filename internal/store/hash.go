package store

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"
)

// ContentHash computes the hash call records are keyed against. Records
// taken from a file whose content hash has since changed describe lines
// that may have moved and are not used.
func ContentHash(src string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(src)))
}

// SetSourceHash records the content hash path had when it was traced.
func (s *Store) SetSourceHash(path, hash string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO source_hashes (path, hash, recorded_at) VALUES (?, ?, ?)",
		path, hash, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set source hash: %w", err)
	}
	return nil
}

// SourceHash returns the recorded hash for path, or "" if none.
func (s *Store) SourceHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM source_hashes WHERE path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("source hash: %w", err)
	}
	return hash, nil
}

// PurgeStale drops the records of path when its recorded hash differs from
// current. It reports whether anything was dropped.
func (s *Store) PurgeStale(path, current string) (bool, error) {
	recorded, err := s.SourceHash(path)
	if err != nil {
		return false, err
	}
	if recorded == "" || recorded == current {
		return false, nil
	}
	if err := s.DeleteCallsByPaths([]string{path}); err != nil {
		return false, err
	}
	if _, err := s.db.Exec("DELETE FROM source_hashes WHERE path = ?", path); err != nil {
		return false, fmt.Errorf("purge stale: %w", err)
	}
	return true, nil
}
