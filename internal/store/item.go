package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const itemColumns = `i.id, i.queue_id, i.external_ref, COALESCE(i.title,''), i.priority,
	COALESCE(i.payload,''), COALESCE(i.assigned_to,''), i.status_value_id, sv.code,
	i.version, i.locked_until, COALESCE(i.created_by,''), i.created_at, i.updated_at`

// CreateItem inserts a new queue item. Returns ErrDuplicateRef when the
// external_ref is already taken.
func (s *Store) CreateItem(it *Item) (*Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	var assigned, createdBy, lockedUntil any
	if it.AssignedTo != "" {
		assigned = it.AssignedTo
	}
	if it.CreatedBy != "" {
		createdBy = it.CreatedBy
	}
	if it.LockedUntil != nil {
		lockedUntil = *it.LockedUntil
	}
	_, err := s.db.Exec(`INSERT INTO queue_items
		(id, queue_id, external_ref, title, priority, payload, assigned_to, status_value_id, version, locked_until, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		it.ID, it.QueueID, it.ExternalRef, it.Title, it.Priority, it.Payload,
		assigned, it.StatusValueID, lockedUntil, createdBy, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateRef
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	return s.GetItem(it.ID)
}

// GetItem returns an item by id with its status code resolved.
func (s *Store) GetItem(id string) (*Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+`
		FROM queue_items i JOIN status_values sv ON sv.id = i.status_value_id
		WHERE i.id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// GetItemByExternalRef returns the item for an external reference.
// Returns (nil, nil) if not found — callers use this for dedup checks.
func (s *Store) GetItemByExternalRef(ref string) (*Item, error) {
	if ref == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+itemColumns+`
		FROM queue_items i JOIN status_values sv ON sv.id = i.status_value_id
		WHERE i.external_ref = ?`, ref)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by external ref: %w", err)
	}
	return it, nil
}

// ItemSegment resolves the pipeline segment of an item via its queue.
func (s *Store) ItemSegment(itemID string) (string, error) {
	var segment string
	err := s.db.QueryRow(`SELECT q.segment FROM queue_items i
		JOIN queues q ON q.id = i.queue_id WHERE i.id = ?`, itemID).Scan(&segment)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("item segment: %w", err)
	}
	return segment, nil
}

// FindActiveItemForAgent returns the item currently assigned to the agent in
// one of the given status codes, or (nil, nil) when the agent has nothing in
// flight.
func (s *Store) FindActiveItemForAgent(agentID string, statusCodes []string) (*Item, error) {
	if len(statusCodes) == 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + `
		FROM queue_items i JOIN status_values sv ON sv.id = i.status_value_id
		WHERE i.assigned_to = ? AND sv.code IN (` + placeholders(len(statusCodes)) + `)
		LIMIT 1`
	args := []any{agentID}
	for _, c := range statusCodes {
		args = append(args, c)
	}
	it, err := scanItem(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active item: %w", err)
	}
	return it, nil
}

// FindCandidates returns claimable items in the given segments and statuses,
// most urgent first with an oldest-first tie-break. minPriority is an
// optional floor. The result ordering is advisory only — the claim CAS, not
// this query, decides who wins a race.
func (s *Store) FindCandidates(segments, statusCodes []string, minPriority *int, limit int) ([]Item, error) {
	if len(segments) == 0 || len(statusCodes) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + itemColumns + `
		FROM queue_items i
		JOIN status_values sv ON sv.id = i.status_value_id
		JOIN queues q ON q.id = i.queue_id
		WHERE q.segment IN (` + placeholders(len(segments)) + `)
		AND sv.code IN (` + placeholders(len(statusCodes)) + `)`
	args := []any{}
	for _, seg := range segments {
		args = append(args, seg)
	}
	for _, c := range statusCodes {
		args = append(args, c)
	}
	if minPriority != nil {
		query += ` AND i.priority >= ?`
		args = append(args, *minPriority)
	}
	query += ` ORDER BY i.priority DESC, i.created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// AcceptItem atomically assigns an item to an agent: status, assignee, and
// lock expiry are set only if the version still matches. Returns
// ErrVersionConflict when another agent won the race, ErrAgentBusy when the
// agent already holds a different item.
func (s *Store) AcceptItem(itemID string, expectedVersion int64, statusValueID, agentID string, lockedUntil time.Time) error {
	res, err := s.db.Exec(`UPDATE queue_items
		SET status_value_id = ?, assigned_to = ?, locked_until = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		statusValueID, agentID, lockedUntil.UTC(), time.Now().UTC(), itemID, expectedVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAgentBusy
		}
		return fmt.Errorf("accept item: %w", err)
	}
	return casOutcome(res)
}

// CloseItem atomically transitions an item to a non-active status, clearing
// the assignment and lock. Returns ErrVersionConflict on a lost race.
func (s *Store) CloseItem(itemID string, expectedVersion int64, statusValueID string) error {
	res, err := s.db.Exec(`UPDATE queue_items
		SET status_value_id = ?, assigned_to = NULL, locked_until = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		statusValueID, time.Now().UTC(), itemID, expectedVersion)
	if err != nil {
		return fmt.Errorf("close item: %w", err)
	}
	return casOutcome(res)
}

// ReleaseExpiredClaims reverts claims whose lock expired before now back to
// the given pickable status and returns the affected item ids. Each row is
// released with its own CAS so a concurrent submit always wins.
func (s *Store) ReleaseExpiredClaims(now time.Time, toStatusValueID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id, version FROM queue_items
		WHERE assigned_to IS NOT NULL AND locked_until IS NOT NULL AND locked_until < ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find expired claims: %w", err)
	}
	type expired struct {
		id      string
		version int64
	}
	var candidates []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.version); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []string
	for _, e := range candidates {
		res, err := s.db.Exec(`UPDATE queue_items
			SET status_value_id = ?, assigned_to = NULL, locked_until = NULL, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			toStatusValueID, time.Now().UTC(), e.id, e.version)
		if err != nil {
			return released, fmt.Errorf("release claim %s: %w", e.id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			released = append(released, e.id)
		}
	}
	return released, nil
}

func casOutcome(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row *sql.Row) (*Item, error) {
	return scanItemFrom(row)
}

func scanItemRows(rows *sql.Rows) (*Item, error) {
	return scanItemFrom(rows)
}

func scanItemFrom(r rowScanner) (*Item, error) {
	var it Item
	var lockedUntil sql.NullTime
	err := r.Scan(&it.ID, &it.QueueID, &it.ExternalRef, &it.Title, &it.Priority,
		&it.Payload, &it.AssignedTo, &it.StatusValueID, &it.StatusCode,
		&it.Version, &lockedUntil, &it.CreatedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		it.LockedUntil = &lockedUntil.Time
	}
	return &it, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
