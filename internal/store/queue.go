package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnsureQueue finds or lazily creates the queue for (segment, statusCode).
// The create race is resolved by the UNIQUE(segment, status_code) constraint:
// attempt the insert, and on conflict re-read the winner's row.
func (s *Store) EnsureQueue(segment, statusCode, ownerAgentID string) (*Queue, error) {
	segment = strings.ToLower(strings.TrimSpace(segment))
	statusCode = strings.ToLower(strings.TrimSpace(statusCode))

	q, err := s.GetQueueBySegmentStatus(segment, statusCode)
	if err == nil {
		return q, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	title := strings.ToUpper(segment) + " :: " + statusCode
	var owner any
	if ownerAgentID != "" {
		owner = ownerAgentID
	}
	_, err = s.db.Exec(`INSERT INTO queues (id, segment, status_code, title, description, owner_agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment, status_code) DO NOTHING`,
		id, segment, statusCode, title, "created automatically on first insertion", owner, now, now)
	if err != nil {
		return nil, fmt.Errorf("create queue %s/%s: %w", segment, statusCode, err)
	}
	return s.GetQueueBySegmentStatus(segment, statusCode)
}

// GetQueue returns a queue by id.
func (s *Store) GetQueue(id string) (*Queue, error) {
	return s.scanQueue(s.db.QueryRow(`SELECT id, segment, status_code, COALESCE(title,''),
		COALESCE(description,''), COALESCE(owner_agent_id,''), created_at, updated_at
		FROM queues WHERE id = ?`, id))
}

// GetQueueBySegmentStatus returns the queue for one (segment, status) pair.
func (s *Store) GetQueueBySegmentStatus(segment, statusCode string) (*Queue, error) {
	return s.scanQueue(s.db.QueryRow(`SELECT id, segment, status_code, COALESCE(title,''),
		COALESCE(description,''), COALESCE(owner_agent_id,''), created_at, updated_at
		FROM queues WHERE segment = ? AND status_code = ?`, segment, statusCode))
}

func (s *Store) scanQueue(row *sql.Row) (*Queue, error) {
	var q Queue
	err := row.Scan(&q.ID, &q.Segment, &q.StatusCode, &q.Title,
		&q.Description, &q.OwnerAgentID, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	return &q, nil
}

// ListQueues returns all queues ordered by segment then status.
func (s *Store) ListQueues() ([]Queue, error) {
	rows, err := s.db.Query(`SELECT id, segment, status_code, COALESCE(title,''),
		COALESCE(description,''), COALESCE(owner_agent_id,''), created_at, updated_at
		FROM queues ORDER BY segment ASC, status_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var out []Queue
	for rows.Next() {
		var q Queue
		if err := rows.Scan(&q.ID, &q.Segment, &q.StatusCode, &q.Title,
			&q.Description, &q.OwnerAgentID, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
