package audit

import (
	"encoding/json"
	"strings"
)

// Action represents what was done to an entity
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
	ActionView   Action = "VIEW"
	ActionExport Action = "EXPORT"
	ActionSearch Action = "SEARCH"
)

// AllActions returns every supported action in display order
func AllActions() []Action {
	return []Action{
		ActionCreate,
		ActionUpdate,
		ActionDelete,
		ActionLogin,
		ActionLogout,
		ActionView,
		ActionExport,
		ActionSearch,
	}
}

// Valid reports whether a is a member of the action enumeration
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin,
		ActionLogout, ActionView, ActionExport, ActionSearch:
		return true
	}
	return false
}

// ParseAction parses an action case-insensitively
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", invalidValue(ErrInvalidAction, s)
	}
	return a, nil
}

// EntityType represents the kind of domain object an action targets
type EntityType string

const (
	EntityTestSheets    EntityType = "test_sheets"
	EntityUsers         EntityType = "users"
	EntityTestItems     EntityType = "test_items"
	EntityTestTemplates EntityType = "test_templates"
	EntityAuditLogs     EntityType = "audit_logs"
)

// AllEntityTypes returns every supported entity type in display order
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTestSheets,
		EntityUsers,
		EntityTestItems,
		EntityTestTemplates,
		EntityAuditLogs,
	}
}

// Valid reports whether e is a member of the entity enumeration
func (e EntityType) Valid() bool {
	switch e {
	case EntityTestSheets, EntityUsers, EntityTestItems, EntityTestTemplates, EntityAuditLogs:
		return true
	}
	return false
}

// ParseEntityType parses an entity type case-insensitively
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", invalidValue(ErrInvalidEntityType, s)
	}
	return e, nil
}

// Severity is a coarse priority tag, independent of the action
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AllSeverities returns every supported severity from lowest to highest
func AllSeverities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// Valid reports whether s is a member of the severity enumeration
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity parses a severity case-insensitively
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", invalidValue(ErrInvalidSeverity, s)
	}
	return sev, nil
}

// Snapshot is a serialized entity state
type Snapshot map[string]interface{}

// Change is a single field transition
type Change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// ChangeSet maps a field name to its transition
type ChangeSet map[string]Change

// RequestContext is the HTTP metadata attached to a record
type RequestContext struct {
	IPAddress  string `json:"ipAddress,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	HTTPMethod string `json:"httpMethod,omitempty"`
}

// IsZero reports whether no request metadata is set
func (rc RequestContext) IsZero() bool {
	return rc == RequestContext{}
}

// Actor identifies who performed an action
type Actor struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Record is one immutable audit log entry
type Record struct {
	ID int64 `json:"id"`

	// Actor information
	ActorID    string `json:"userId,omitempty"`
	ActorEmail string `json:"userEmail"`
	ActorName  string `json:"userName,omitempty"`

	// What happened
	Action     Action     `json:"action"`
	EntityType EntityType `json:"entity"`
	EntityID   string     `json:"entityId,omitempty"`

	// State tracking
	Changes ChangeSet `json:"changes,omitempty"`
	Before  Snapshot  `json:"oldValues,omitempty"`
	After   Snapshot  `json:"newValues,omitempty"`

	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`

	*RequestContext

	// OccurredAt is the logical event time in Unix seconds
	OccurredAt int64 `json:"timestamp"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Before = cloneSnapshot(r.Before)
	c.After = cloneSnapshot(r.After)
	if r.Changes != nil {
		c.Changes = make(ChangeSet, len(r.Changes))
		for k, v := range r.Changes {
			c.Changes[k] = Change{From: cloneValue(v.From), To: cloneValue(v.To)}
		}
	}
	if r.RequestContext != nil {
		rc := *r.RequestContext
		c.RequestContext = &rc
	}
	return &c
}

// ToJSON converts the record to JSON
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func cloneSnapshot(s Snapshot) Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Snapshot:
		return cloneSnapshot(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
