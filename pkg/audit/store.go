package audit

import (
	"context"
	"sort"
	"strings"
)

// Store is the storage collaborator consumed by the audit engine.
// Implementations must never mutate a record after Insert.
type Store interface {
	// Insert persists a record atomically and returns it with its ID assigned
	Insert(ctx context.Context, rec *Record) (*Record, error)

	// Select returns records matching c, newest first, bounded by page
	Select(ctx context.Context, c Criteria, page Page) ([]*Record, error)

	// Count returns the number of records matching c
	Count(ctx context.Context, c Criteria) (int64, error)

	// CountBy returns grouped counts of records matching c
	CountBy(ctx context.Context, c Criteria, dim Dimension) ([]Bucket, error)

	// TopActors returns the actors with the most records matching c
	TopActors(ctx context.Context, c Criteria, limit int) ([]ActorCount, error)

	// Delete removes every record matching c and returns how many were removed
	Delete(ctx context.Context, c Criteria) (int64, error)
}

// Criteria is the predicate shared by every read and delete. Zero-valued
// fields do not constrain the result; set fields are ANDed.
type Criteria struct {
	ActorID    string
	Action     Action
	EntityType EntityType
	EntityID   string
	Severity   Severity

	// From and To bound OccurredAt inclusively, in Unix seconds
	From *int64
	To   *int64

	// Search matches case-insensitive substrings of actor email, actor name,
	// description or entity id
	Search string
}

// Matches evaluates the predicate against a record
func (c Criteria) Matches(r *Record) bool {
	if c.ActorID != "" && r.ActorID != c.ActorID {
		return false
	}
	if c.Action != "" && r.Action != c.Action {
		return false
	}
	if c.EntityType != "" && r.EntityType != c.EntityType {
		return false
	}
	if c.EntityID != "" && r.EntityID != c.EntityID {
		return false
	}
	if c.Severity != "" && r.Severity != c.Severity {
		return false
	}
	if c.From != nil && r.OccurredAt < *c.From {
		return false
	}
	if c.To != nil && r.OccurredAt > *c.To {
		return false
	}
	if c.Search != "" {
		needle := strings.ToLower(c.Search)
		if !containsFold(r.ActorEmail, needle) &&
			!containsFold(r.ActorName, needle) &&
			!containsFold(r.Description, needle) &&
			!containsFold(r.EntityID, needle) {
			return false
		}
	}
	return true
}

func containsFold(haystack, lowerNeedle string) bool {
	return haystack != "" && strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// Page bounds a Select call
type Page struct {
	Limit  int
	Offset int
}

// Dimension is a grouping key for CountBy
type Dimension string

const (
	DimensionAction   Dimension = "action"
	DimensionEntity   Dimension = "entity"
	DimensionSeverity Dimension = "severity"
)

// Key extracts the dimension value from a record
func (d Dimension) Key(r *Record) string {
	switch d {
	case DimensionAction:
		return string(r.Action)
	case DimensionEntity:
		return string(r.EntityType)
	case DimensionSeverity:
		return string(r.Severity)
	}
	return ""
}

// Bucket is one grouped count
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// ActorCount is the number of records attributed to one actor
type ActorCount struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Count int64  `json:"count"`
}

// SortBuckets orders buckets by count descending, then key ascending
func SortBuckets(b []Bucket) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].Count != b[j].Count {
			return b[i].Count > b[j].Count
		}
		return b[i].Key < b[j].Key
	})
}

// SortActorCounts orders actors by count descending, then email and name ascending
func SortActorCounts(a []ActorCount) {
	sort.SliceStable(a, func(i, j int) bool {
		if a[i].Count != a[j].Count {
			return a[i].Count > a[j].Count
		}
		if a[i].Email != a[j].Email {
			return a[i].Email < a[j].Email
		}
		return a[i].Name < a[j].Name
	})
}

// SortRecords orders records newest first with ID as the tie-break
func SortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].OccurredAt != records[j].OccurredAt {
			return records[i].OccurredAt > records[j].OccurredAt
		}
		return records[i].ID > records[j].ID
	})
}
