// Package store is the relational layer of the handoff engine. All task
// mutations go through compare-and-swap on the item version column; the
// uniqueness of external_ref is the idempotency guarantee for ingestion
// and handoff fan-out.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a CAS update loses a race.
	// Callers retry against another candidate, never the same row.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateRef is returned when an external_ref already exists.
	ErrDuplicateRef = errors.New("duplicate external ref")
	// ErrAgentBusy is returned when assigning an item to an agent that
	// already holds one; the unique index on assigned_to enforces the
	// one-in-flight invariant at the storage level.
	ErrAgentBusy = errors.New("agent already has an item in flight")
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at dbPath and applies the
// schema and seed status values.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &Store{db: db}
	if err := s.seedStatusValues(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying *sql.DB for shared access.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) seedStatusValues() error {
	for _, code := range []string{
		StatusQueued, StatusInProgress, StatusReview,
		StatusReturned, StatusCompleted, StatusCancelled,
	} {
		_, err := s.db.Exec(`INSERT INTO status_values (id, code, title) VALUES (?, ?, ?)
			ON CONFLICT(code) DO NOTHING`, uuid.NewString(), code, code)
		if err != nil {
			return fmt.Errorf("seed status %s: %w", code, err)
		}
	}
	return nil
}

// RequireStatus resolves a status code to its catalog id.
func (s *Store) RequireStatus(code string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM status_values WHERE code = ?`, code).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("status %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("require status: %w", err)
	}
	return id, nil
}

// StatusCodeByID resolves a catalog id back to its code.
func (s *Store) StatusCodeByID(id string) (string, error) {
	var code string
	err := s.db.QueryRow(`SELECT code FROM status_values WHERE id = ?`, id).Scan(&code)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("status id %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("status code by id: %w", err)
	}
	return code, nil
}
