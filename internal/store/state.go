package store

import (
	"fmt"
	"time"
)

// AppendState records one immutable history entry for an item transition.
// History rows are never updated or deleted; their insertion order is the
// audit trail.
func (s *Store) AppendState(st *ItemState) error {
	var actor any
	if st.ActorAgentID != "" {
		actor = st.ActorAgentID
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO queue_item_states
		(item_id, status_value_id, status_code, note, actor_agent_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ItemID, st.StatusValueID, st.StatusCode, st.Note, actor, st.Metadata, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("append state: %w", err)
	}
	return nil
}

// ListStates returns the full history of an item, oldest first.
func (s *Store) ListStates(itemID string) ([]ItemState, error) {
	rows, err := s.db.Query(`SELECT id, item_id, status_value_id, status_code,
		COALESCE(note,''), COALESCE(actor_agent_id,''), COALESCE(metadata,''), created_at
		FROM queue_item_states WHERE item_id = ? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []ItemState
	for rows.Next() {
		var st ItemState
		if err := rows.Scan(&st.ID, &st.ItemID, &st.StatusValueID, &st.StatusCode,
			&st.Note, &st.ActorAgentID, &st.Metadata, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
