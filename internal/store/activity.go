package store

import (
	"fmt"
)

// RecordActivity appends one audit entry. The sink is fire-and-forget from
// the engine's perspective; errors are the caller's to swallow.
func (s *Store) RecordActivity(e *ActivityEntry) error {
	var itemID any
	if e.ItemID != "" {
		itemID = e.ItemID
	}
	_, err := s.db.Exec(`INSERT INTO activity_log (actor, item_id, event_code, metadata)
		VALUES (?, ?, ?, ?)`, e.Actor, itemID, e.EventCode, e.Metadata)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListActivity returns audit entries for one item, oldest first.
func (s *Store) ListActivity(itemID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, COALESCE(actor,''), COALESCE(item_id,''), event_code, COALESCE(metadata,''), created_at
		FROM activity_log WHERE item_id = ? ORDER BY id ASC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.ItemID, &e.EventCode, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
