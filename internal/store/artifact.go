package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddArtifact records one submission attachment. Artifacts are immutable
// once created.
func (s *Store) AddArtifact(a *ItemArtifact) (*ItemArtifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO queue_item_artifacts
		(id, item_id, artifact_type, title, url, storage_path, media_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.ArtifactType, a.Title, a.URL, a.StoragePath, a.MediaType, a.SizeBytes, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns all artifacts of an item, oldest first.
func (s *Store) ListArtifacts(itemID string) ([]ItemArtifact, error) {
	rows, err := s.db.Query(`SELECT id, item_id, artifact_type, COALESCE(title,''),
		COALESCE(url,''), COALESCE(storage_path,''), COALESCE(media_type,''), size_bytes, created_at
		FROM queue_item_artifacts WHERE item_id = ? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ItemArtifact
	for rows.Next() {
		var a ItemArtifact
		if err := rows.Scan(&a.ID, &a.ItemID, &a.ArtifactType, &a.Title,
			&a.URL, &a.StoragePath, &a.MediaType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
