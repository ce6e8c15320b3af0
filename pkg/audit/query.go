package audit

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultPageLimit is used when a filter has no usable limit
	DefaultPageLimit = 50

	// MaxPageLimit caps every page and history size
	MaxPageLimit = 200

	// DefaultHistoryLimit is the entity history size when none is given
	DefaultHistoryLimit = 20

	// MaxPage keeps (page-1)*limit within int for every allowed limit
	MaxPage = math.MaxInt / MaxPageLimit

	recentWindow = 24 * time.Hour
)

// Filter selects and paginates audit records
type Filter struct {
	ActorID    string
	Action     Action
	EntityType EntityType
	EntityID   string
	Severity   Severity
	From       *int64
	To         *int64
	Search     string

	Page  int
	Limit int
}

// Normalize clamps pagination into its valid range
func (f Filter) Normalize() Filter {
	switch {
	case f.Page < 1:
		f.Page = 1
	case f.Page > MaxPage:
		f.Page = MaxPage
	}
	switch {
	case f.Limit < 1:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	return f
}

// Criteria returns the storage predicate of the filter
func (f Filter) Criteria() Criteria {
	return Criteria{
		ActorID:    f.ActorID,
		Action:     f.Action,
		EntityType: f.EntityType,
		EntityID:   f.EntityID,
		Severity:   f.Severity,
		From:       f.From,
		To:         f.To,
		Search:     f.Search,
	}
}

// Pagination describes one page of a query result
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

func newPagination(page, limit int, total int64) Pagination {
	l := int64(limit)
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + l - 1) / l,
		HasMore:    int64(page)*l < total,
	}
}

// QueryResult is one page of records with its pagination
type QueryResult struct {
	Records    []*Record  `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

// Query returns the page of records matching the filter, newest first
func (s *Service) Query(ctx context.Context, f Filter) (result *QueryResult, err error) {
	started := time.Now()
	defer func() { s.metrics.observeQuery("query", started, err) }()

	f = f.Normalize()
	c := f.Criteria()

	total, err := s.store.Count(ctx, c)
	if err != nil {
		return nil, storageError("count", err)
	}

	records, err := s.store.Select(ctx, c, Page{Limit: f.Limit, Offset: (f.Page - 1) * f.Limit})
	if err != nil {
		return nil, storageError("select", err)
	}
	if records == nil {
		records = []*Record{}
	}

	return &QueryResult{
		Records:    records,
		Pagination: newPagination(f.Page, f.Limit, total),
	}, nil
}

// HistoryFor returns the most recent records of one entity. An entity
// without records yields an empty list.
func (s *Service) HistoryFor(ctx context.Context, entityType EntityType, entityID string, limit int) (records []*Record, err error) {
	started := time.Now()
	defer func() { s.metrics.observeQuery("history", started, err) }()

	switch {
	case limit < 1:
		limit = DefaultHistoryLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	c := Criteria{EntityType: entityType, EntityID: entityID}
	records, err = s.store.Select(ctx, c, Page{Limit: limit})
	if err != nil {
		return nil, storageError("select history", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

// ForActor returns one page of the records attributed to an actor
func (s *Service) ForActor(ctx context.Context, actorID string, page, limit int) (*QueryResult, error) {
	return s.Query(ctx, Filter{ActorID: actorID, Page: page, Limit: limit})
}

// Recent returns the first page of records from the last 24 hours
func (s *Service) Recent(ctx context.Context, limit int) (*QueryResult, error) {
	from := s.now().Add(-recentWindow).Unix()
	return s.Query(ctx, Filter{From: &from, Page: 1, Limit: limit})
}
