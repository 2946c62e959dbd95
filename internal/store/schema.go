package store

import (
	"time"
)

// Queue is a named bucket of tasks for one (segment, status code) pair.
type Queue struct {
	ID           string    `json:"id"`
	Segment      string    `json:"segment"`
	StatusCode   string    `json:"status_code"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	OwnerAgentID string    `json:"owner_agent_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Item is one unit of work moving through pipeline segments.
type Item struct {
	ID            string     `json:"id"`
	QueueID       string     `json:"queue_id"`
	ExternalRef   string     `json:"external_ref"`
	Title         string     `json:"title"`
	Priority      int        `json:"priority"`
	Payload       string     `json:"payload,omitempty"` // JSON blob, see engine.Payload
	AssignedTo    string     `json:"assigned_to,omitempty"`
	StatusValueID string     `json:"status_value_id"`
	StatusCode    string     `json:"status_code"`
	Version       int64      `json:"version"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ItemState is one immutable history entry for an item transition.
type ItemState struct {
	ID            int64     `json:"id"`
	ItemID        string    `json:"item_id"`
	StatusValueID string    `json:"status_value_id"`
	StatusCode    string    `json:"status_code"`
	Note          string    `json:"note,omitempty"`
	ActorAgentID  string    `json:"actor_agent_id,omitempty"`
	Metadata      string    `json:"metadata,omitempty"` // JSON snapshot
	CreatedAt     time.Time `json:"created_at"`
}

// ItemTemplate associates a template reference with an item.
type ItemTemplate struct {
	ID              string    `json:"id"`
	ItemID          string    `json:"item_id"`
	TemplateCode    string    `json:"template_code"`
	TemplateType    string    `json:"template_type"` // PRIMARY, CHECKLIST, REFERENCE
	TemplateVersion string    `json:"template_version,omitempty"`
	SourcePath      string    `json:"source_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ItemArtifact is a submission-time attachment owned by exactly one item.
type ItemArtifact struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	ArtifactType string    `json:"artifact_type"` // LINK or FILE
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	StoragePath  string    `json:"storage_path,omitempty"`
	MediaType    string    `json:"media_type,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Agent is an entry in the agent directory.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RoleKey   string    `json:"role_key"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Preference is the per-agent-role claim/submit policy. Segment and status
// lists are stored as JSON arrays.
type Preference struct {
	RoleKey          string   `json:"role_key"`
	PrimarySegments  []string `json:"primary_segments"`
	FallbackSegments []string `json:"fallback_segments"`
	PickupStatuses   []string `json:"pickup_statuses"`
	ActiveStatuses   []string `json:"active_statuses"`
	AcceptStatus     string   `json:"accept_status"`
	ReturnStatus     string   `json:"return_status"`
	ClaimTTLMinutes  int      `json:"claim_ttl_minutes"`
}

// HandoffRule is a declarative pipeline edge: work finished in Segment with
// StatusCode spawns a successor task in NextSegment.
type HandoffRule struct {
	ID            string    `json:"id"`
	Segment       string    `json:"segment"`
	StatusCode    string    `json:"status_code"`
	NextSegment   string    `json:"next_segment"`
	TemplateCodes string    `json:"template_codes,omitempty"` // comma list
	CreatedAt     time.Time `json:"created_at"`
}

// StatusValue is one entry of the task status enum catalog.
type StatusValue struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// ActivityEntry is one fire-and-forget audit record.
type ActivityEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	ItemID    string    `json:"item_id,omitempty"`
	EventCode string    `json:"event_code"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusReturned   = "returned"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"

	TemplatePrimary   = "PRIMARY"
	TemplateChecklist = "CHECKLIST"
	TemplateReference = "REFERENCE"

	ArtifactLink = "LINK"
	ArtifactFile = "FILE"
)

const Schema = `
CREATE TABLE IF NOT EXISTS status_values (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	title TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS queues (
	id TEXT PRIMARY KEY,
	segment TEXT NOT NULL,
	status_code TEXT NOT NULL,
	title TEXT DEFAULT '',
	description TEXT DEFAULT '',
	owner_agent_id TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(segment, status_code)
);

CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	queue_id TEXT NOT NULL REFERENCES queues(id),
	external_ref TEXT UNIQUE NOT NULL,
	title TEXT DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	payload TEXT DEFAULT '',
	assigned_to TEXT,
	status_value_id TEXT NOT NULL REFERENCES status_values(id),
	version INTEGER NOT NULL DEFAULT 0,
	locked_until DATETIME,
	created_by TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_items_queue ON queue_items(queue_id);
CREATE INDEX IF NOT EXISTS idx_items_status ON queue_items(status_value_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_assigned ON queue_items(assigned_to)
	WHERE assigned_to IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_items_priority ON queue_items(priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS queue_item_states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id TEXT NOT NULL REFERENCES queue_items(id),
	status_value_id TEXT NOT NULL,
	status_code TEXT NOT NULL,
	note TEXT DEFAULT '',
	actor_agent_id TEXT,
	metadata TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_item_states_item ON queue_item_states(item_id);

CREATE TABLE IF NOT EXISTS queue_item_templates (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES queue_items(id),
	template_code TEXT NOT NULL,
	template_type TEXT NOT NULL DEFAULT 'REFERENCE',
	template_version TEXT DEFAULT '',
	source_path TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_item_templates_item ON queue_item_templates(item_id);

CREATE TABLE IF NOT EXISTS queue_item_artifacts (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES queue_items(id),
	artifact_type TEXT NOT NULL,
	title TEXT DEFAULT '',
	url TEXT DEFAULT '',
	storage_path TEXT DEFAULT '',
	media_type TEXT DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_item_artifacts_item ON queue_item_artifacts(item_id);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT DEFAULT '',
	role_key TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agents_role ON agents(role_key);

CREATE TABLE IF NOT EXISTS agent_preferences (
	role_key TEXT PRIMARY KEY,
	primary_segments TEXT NOT NULL DEFAULT '[]',
	fallback_segments TEXT NOT NULL DEFAULT '[]',
	pickup_statuses TEXT NOT NULL DEFAULT '[]',
	active_statuses TEXT NOT NULL DEFAULT '[]',
	accept_status TEXT NOT NULL DEFAULT 'in_progress',
	return_status TEXT NOT NULL DEFAULT 'completed',
	claim_ttl_minutes INTEGER NOT NULL DEFAULT 60
);

CREATE TABLE IF NOT EXISTS handoff_rules (
	id TEXT PRIMARY KEY,
	segment TEXT NOT NULL,
	status_code TEXT NOT NULL,
	next_segment TEXT NOT NULL,
	template_codes TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(segment, status_code, next_segment)
);
CREATE INDEX IF NOT EXISTS idx_handoff_segment ON handoff_rules(segment, status_code);

CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT DEFAULT '',
	item_id TEXT,
	event_code TEXT NOT NULL,
	metadata TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_activity_item ON activity_log(item_id);
`
