package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Run operations ---

// InsertRun records the start of a traced execution.
func (s *Store) InsertRun(r *Run) (int64, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	res, err := s.db.Exec(
		"INSERT INTO runs (module_path, started_at) VALUES (?, ?)",
		r.ModulePath, r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// FinishRun stores the exit code and the number of records received.
func (s *Store) FinishRun(id int64, exitCode, records int) error {
	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, exit_code = ?, record_count = ? WHERE id = ?",
		time.Now(), exitCode, records, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RunByID returns the run, or nil if there is none.
func (s *Store) RunByID(id int64) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	var exit sql.NullInt64
	err := s.db.QueryRow(
		"SELECT id, module_path, started_at, finished_at, exit_code, record_count FROM runs WHERE id = ?", id,
	).Scan(&r.ID, &r.ModulePath, &r.StartedAt, &finished, &exit, &r.RecordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	if exit.Valid {
		code := int(exit.Int64)
		r.ExitCode = &code
	}
	return r, nil
}

// --- Call record operations ---

// PutCall stores rec, replacing any earlier record for the same call site.
func (s *Store) PutCall(rec *CallRecord) error {
	return putCall(s.db, rec)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func putCall(db execer, rec *CallRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	var runID any
	if rec.RunID > 0 {
		runID = rec.RunID
	}
	_, err := db.Exec(
		`INSERT OR REPLACE INTO call_records
		   (path, line, run_id, args, return_kind, return_path, return_line, return_builtin, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Line, runID, marshalDescriptors(rec.Args),
		int(rec.Return.Kind), rec.Return.Path, rec.Return.Line, rec.Return.Builtin, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("put call %s:%d: %w", rec.Path, rec.Line, err)
	}
	return nil
}

const callColumns = "path, line, run_id, args, return_kind, return_path, return_line, return_builtin, recorded_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*CallRecord, error) {
	rec := &CallRecord{}
	var runID sql.NullInt64
	var args string
	var kind int
	var retPath, retBuiltin sql.NullString
	var retLine sql.NullInt64
	if err := row.Scan(&rec.Path, &rec.Line, &runID, &args, &kind, &retPath, &retLine, &retBuiltin, &rec.RecordedAt); err != nil {
		return nil, err
	}
	rec.RunID = runID.Int64
	rec.Args = unmarshalDescriptors(args)
	rec.Return = Descriptor{
		Kind:    DescriptorKind(kind),
		Path:    retPath.String,
		Line:    int(retLine.Int64),
		Builtin: retBuiltin.String,
	}
	return rec, nil
}

// LatestCall returns the record for the call site, or nil if none exists.
func (s *Store) LatestCall(path string, line int) (*CallRecord, error) {
	row := s.db.QueryRow("SELECT "+callColumns+" FROM call_records WHERE path = ? AND line = ?", path, line)
	rec, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest call: %w", err)
	}
	return rec, nil
}

func (s *Store) queryCalls(query string, args ...any) ([]*CallRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()
	var recs []*CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CallsByPath returns the records of functions defined in path, by line.
func (s *Store) CallsByPath(path string) ([]*CallRecord, error) {
	return s.queryCalls("SELECT "+callColumns+" FROM call_records WHERE path = ? ORDER BY line", path)
}

// CallsByRun returns the records last written by a run.
func (s *Store) CallsByRun(runID int64) ([]*CallRecord, error) {
	return s.queryCalls("SELECT "+callColumns+" FROM call_records WHERE run_id = ? ORDER BY path, line", runID)
}

// RecordedPaths returns the distinct paths that have call records.
func (s *Store) RecordedPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT path FROM call_records ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("recorded paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteCallsByPaths drops every record of functions defined in paths.
func (s *Store) DeleteCallsByPaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.db.Exec(
		"DELETE FROM call_records WHERE path IN ("+placeholderList(len(paths))+")",
		stringsToArgs(paths)...,
	)
	if err != nil {
		return fmt.Errorf("delete calls: %w", err)
	}
	return nil
}
