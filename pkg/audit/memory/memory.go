// Package memory provides an in-process audit.Store for development and
// tests. Records live only as long as the process.
package memory

import (
	"context"
	"sync"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
)

// Store implements audit.Store with a mutex guarded slice
type Store struct {
	mu      sync.RWMutex
	records []*audit.Record
	nextID  int64
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		records: make([]*audit.Record, 0),
		nextID:  1,
	}
}

// Insert stores a copy of rec with a fresh ID
func (s *Store) Insert(ctx context.Context, rec *audit.Record) (*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := rec.Clone()

	s.mu.Lock()
	stored.ID = s.nextID
	s.nextID++
	s.records = append(s.records, stored)
	s.mu.Unlock()

	return stored.Clone(), nil
}

// Select returns copies of matching records, newest first
func (s *Store) Select(ctx context.Context, c audit.Criteria, page audit.Page) ([]*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := s.matching(c)
	audit.SortRecords(matched)

	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Offset >= len(matched) {
		return []*audit.Record{}, nil
	}
	end := len(matched)
	if page.Limit > 0 && page.Limit < end-page.Offset {
		end = page.Offset + page.Limit
	}

	out := make([]*audit.Record, 0, end-page.Offset)
	for _, r := range matched[page.Offset:end] {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Count returns the number of matching records
func (s *Store) Count(ctx context.Context, c audit.Criteria) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if c.Matches(r) {
			n++
		}
	}
	return n, nil
}

// CountBy groups matching records by dim
func (s *Store) CountBy(ctx context.Context, c audit.Criteria, dim audit.Dimension) ([]audit.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	s.mu.RLock()
	for _, r := range s.records {
		if c.Matches(r) {
			counts[dim.Key(r)]++
		}
	}
	s.mu.RUnlock()

	buckets := make([]audit.Bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, audit.Bucket{Key: k, Count: n})
	}
	audit.SortBuckets(buckets)
	return buckets, nil
}

// TopActors groups matching records by actor email. An actor seen under
// several names is reported with the greatest one, as SQL MAX does.
func (s *Store) TopActors(ctx context.Context, c audit.Criteria, limit int) ([]audit.ActorCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byEmail := make(map[string]*audit.ActorCount)
	s.mu.RLock()
	for _, r := range s.records {
		if !c.Matches(r) {
			continue
		}
		ac, ok := byEmail[r.ActorEmail]
		if !ok {
			ac = &audit.ActorCount{Email: r.ActorEmail}
			byEmail[r.ActorEmail] = ac
		}
		ac.Count++
		if r.ActorName > ac.Name {
			ac.Name = r.ActorName
		}
	}
	s.mu.RUnlock()

	actors := make([]audit.ActorCount, 0, len(byEmail))
	for _, ac := range byEmail {
		actors = append(actors, *ac)
	}
	audit.SortActorCounts(actors)
	if limit > 0 && len(actors) > limit {
		actors = actors[:limit]
	}
	return actors, nil
}

// Delete removes matching records. Criteria without an upper time bound
// are refused.
func (s *Store) Delete(ctx context.Context, c audit.Criteria) (int64, error) {
	if c.To == nil {
		return 0, audit.ErrUnboundedDelete
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if c.Matches(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil
	}
	s.records = kept
	return deleted, nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) matching(c audit.Criteria) []*audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*audit.Record, 0)
	for _, r := range s.records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

var _ audit.Store = (*Store)(nil)
