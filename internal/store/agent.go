package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertAgent registers or updates an agent directory entry.
func (s *Store) UpsertAgent(a *Agent) (*Agent, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`INSERT INTO agents (id, name, role_key, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role_key = excluded.role_key, active = excluded.active`,
		a.ID, a.Name, a.RoleKey, a.Active, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}
	return s.RequireAgent(a.ID)
}

// RequireAgent returns the agent for an id or ErrNotFound.
func (s *Store) RequireAgent(id string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRow(`SELECT id, COALESCE(name,''), role_key, active, created_at
		FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.RoleKey, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("require agent: %w", err)
	}
	return &a, nil
}

// RequireActiveByRole returns one active agent holding the given role.
func (s *Store) RequireActiveByRole(roleKey string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRow(`SELECT id, COALESCE(name,''), role_key, active, created_at
		FROM agents WHERE role_key = ? AND active = 1 ORDER BY created_at ASC LIMIT 1`, roleKey).
		Scan(&a.ID, &a.Name, &a.RoleKey, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("require active agent by role: %w", err)
	}
	return &a, nil
}

// UpsertPreference stores the claim/submit policy for one agent role.
func (s *Store) UpsertPreference(p *Preference) error {
	primary, _ := json.Marshal(p.PrimarySegments)
	fallback, _ := json.Marshal(p.FallbackSegments)
	pickup, _ := json.Marshal(p.PickupStatuses)
	active, _ := json.Marshal(p.ActiveStatuses)
	_, err := s.db.Exec(`INSERT INTO agent_preferences
		(role_key, primary_segments, fallback_segments, pickup_statuses, active_statuses, accept_status, return_status, claim_ttl_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(role_key) DO UPDATE SET
			primary_segments = excluded.primary_segments,
			fallback_segments = excluded.fallback_segments,
			pickup_statuses = excluded.pickup_statuses,
			active_statuses = excluded.active_statuses,
			accept_status = excluded.accept_status,
			return_status = excluded.return_status,
			claim_ttl_minutes = excluded.claim_ttl_minutes`,
		p.RoleKey, string(primary), string(fallback), string(pickup), string(active),
		p.AcceptStatus, p.ReturnStatus, p.ClaimTTLMinutes)
	if err != nil {
		return fmt.Errorf("upsert preference %s: %w", p.RoleKey, err)
	}
	return nil
}

// GetPreferenceByRole loads the policy for one role, or ErrNotFound.
func (s *Store) GetPreferenceByRole(roleKey string) (*Preference, error) {
	var p Preference
	var primary, fallback, pickup, active string
	err := s.db.QueryRow(`SELECT role_key, primary_segments, fallback_segments,
		pickup_statuses, active_statuses, accept_status, return_status, claim_ttl_minutes
		FROM agent_preferences WHERE role_key = ?`, roleKey).
		Scan(&p.RoleKey, &primary, &fallback, &pickup, &active,
			&p.AcceptStatus, &p.ReturnStatus, &p.ClaimTTLMinutes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	for _, pair := range []struct {
		raw string
		dst *[]string
	}{
		{primary, &p.PrimarySegments},
		{fallback, &p.FallbackSegments},
		{pickup, &p.PickupStatuses},
		{active, &p.ActiveStatuses},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("decode preference lists for %s: %w", roleKey, err)
		}
	}
	return &p, nil
}
