package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttachTemplates links template references to an item.
func (s *Store) AttachTemplates(itemID string, templates []ItemTemplate) error {
	for _, tpl := range templates {
		id := tpl.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := tpl.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := s.db.Exec(`INSERT INTO queue_item_templates
			(id, item_id, template_code, template_type, template_version, source_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, itemID, tpl.TemplateCode, tpl.TemplateType, tpl.TemplateVersion, tpl.SourcePath, created)
		if err != nil {
			return fmt.Errorf("attach template %s: %w", tpl.TemplateCode, err)
		}
	}
	return nil
}

// ListTemplates returns the template references attached to an item.
func (s *Store) ListTemplates(itemID string) ([]ItemTemplate, error) {
	rows, err := s.db.Query(`SELECT id, item_id, template_code, template_type,
		COALESCE(template_version,''), COALESCE(source_path,''), created_at
		FROM queue_item_templates WHERE item_id = ? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []ItemTemplate
	for rows.Next() {
		var tpl ItemTemplate
		if err := rows.Scan(&tpl.ID, &tpl.ItemID, &tpl.TemplateCode, &tpl.TemplateType,
			&tpl.TemplateVersion, &tpl.SourcePath, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}
