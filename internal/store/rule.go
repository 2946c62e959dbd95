package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertHandoffRule stores one declarative pipeline edge. Adding a stage is
// a data change, not a code change.
func (s *Store) UpsertHandoffRule(r *HandoffRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`INSERT INTO handoff_rules (id, segment, status_code, next_segment, template_codes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment, status_code, next_segment) DO UPDATE SET template_codes = excluded.template_codes`,
		r.ID, strings.ToLower(r.Segment), strings.ToLower(r.StatusCode),
		strings.ToLower(r.NextSegment), r.TemplateCodes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert handoff rule: %w", err)
	}
	return nil
}

// FindHandoffRules returns the ordered rules matching (segment, statusCode).
// An empty result is the normal way a pipeline branch terminates.
func (s *Store) FindHandoffRules(segment, statusCode string) ([]HandoffRule, error) {
	rows, err := s.db.Query(`SELECT id, segment, status_code, next_segment, COALESCE(template_codes,''), created_at
		FROM handoff_rules WHERE segment = ? AND status_code = ?
		ORDER BY created_at ASC, next_segment ASC`,
		strings.ToLower(segment), strings.ToLower(statusCode))
	if err != nil {
		return nil, fmt.Errorf("find handoff rules: %w", err)
	}
	defer rows.Close()

	var out []HandoffRule
	for rows.Next() {
		var r HandoffRule
		if err := rows.Scan(&r.ID, &r.Segment, &r.StatusCode, &r.NextSegment, &r.TemplateCodes, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TemplateCodeList splits the comma list of template codes on a rule.
func (r *HandoffRule) TemplateCodeList() []string {
	var out []string
	for _, raw := range strings.Split(r.TemplateCodes, ",") {
		if code := strings.TrimSpace(raw); code != "" {
			out = append(out, code)
		}
	}
	return out
}
