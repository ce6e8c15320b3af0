package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func seed(t *testing.T, s *Store, records ...*audit.Record) {
	t.Helper()
	for _, r := range records {
		_, err := s.Insert(context.Background(), r)
		require.NoError(t, err)
	}
}

func rec(email string, action audit.Action, entity audit.EntityType, at int64) *audit.Record {
	return &audit.Record{
		ActorEmail: email,
		Action:     action,
		EntityType: entity,
		Severity:   audit.SeverityInfo,
		OccurredAt: at,
	}
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s := New()

	first, err := s.Insert(context.Background(), rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100))
	require.NoError(t, err)
	second, err := s.Insert(context.Background(), rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, 2, s.Len())
}

func TestInsertCopiesInAndOut(t *testing.T) {
	s := New()
	input := rec("a@x.io", audit.ActionUpdate, audit.EntityTestSheets, 100)
	input.After = audit.Snapshot{"status": "draft"}

	stored, err := s.Insert(context.Background(), input)
	require.NoError(t, err)

	input.After["status"] = "tampered"
	stored.After["status"] = "tampered"

	got, err := s.Select(context.Background(), audit.Criteria{}, audit.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "draft", got[0].After["status"])

	got[0].After["status"] = "tampered"
	again, err := s.Select(context.Background(), audit.Criteria{}, audit.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "draft", again[0].After["status"])
}

func TestSelectOrderingAndPaging(t *testing.T) {
	s := New()
	seed(t, s,
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionUpdate, audit.EntityTestSheets, 300),
		rec("a@x.io", audit.ActionView, audit.EntityTestSheets, 200),
		rec("a@x.io", audit.ActionDelete, audit.EntityTestSheets, 300),
	)

	all, err := s.Select(context.Background(), audit.Criteria{}, audit.Page{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// equal timestamps fall back to the higher ID first
	assert.Equal(t, audit.ActionDelete, all[0].Action)
	assert.Equal(t, audit.ActionUpdate, all[1].Action)
	assert.Equal(t, audit.ActionView, all[2].Action)
	assert.Equal(t, audit.ActionCreate, all[3].Action)

	tests := []struct {
		name   string
		page   audit.Page
		expect int
	}{
		{"first page", audit.Page{Limit: 3}, 3},
		{"second page", audit.Page{Limit: 3, Offset: 3}, 1},
		{"past the end", audit.Page{Limit: 3, Offset: 9}, 0},
		{"negative offset", audit.Page{Limit: 3, Offset: -64}, 3},
		{"limit overflowing offset", audit.Page{Limit: 1<<62 + 1, Offset: 1 << 62}, 0},
		{"huge limit", audit.Page{Limit: 1 << 62, Offset: 1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Select(context.Background(), audit.Criteria{}, tt.page)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.expect)
		})
	}
}

func TestCountAndCriteria(t *testing.T) {
	s := New()
	seed(t, s,
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100),
		rec("b@x.io", audit.ActionCreate, audit.EntityUsers, 200),
		rec("b@x.io", audit.ActionLogin, audit.EntityUsers, 300),
	)

	tests := []struct {
		name     string
		criteria audit.Criteria
		want     int64
	}{
		{"everything", audit.Criteria{}, 3},
		{"by action", audit.Criteria{Action: audit.ActionCreate}, 2},
		{"by entity", audit.Criteria{EntityType: audit.EntityUsers}, 2},
		{"inclusive range", audit.Criteria{From: int64Ptr(200), To: int64Ptr(300)}, 2},
		{"search email", audit.Criteria{Search: "B@X"}, 2},
		{"unknown enum matches nothing", audit.Criteria{Action: "ARCHIVE"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(context.Background(), tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestCountBy(t *testing.T) {
	s := New()
	seed(t, s,
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionUpdate, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionUpdate, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionDelete, audit.EntityTestSheets, 100),
	)

	buckets, err := s.CountBy(context.Background(), audit.Criteria{}, audit.DimensionAction)
	require.NoError(t, err)
	assert.Equal(t, []audit.Bucket{
		{Key: "UPDATE", Count: 2},
		{Key: "CREATE", Count: 1},
		{Key: "DELETE", Count: 1},
	}, buckets)

	empty, err := s.CountBy(context.Background(), audit.Criteria{ActorID: "nobody"}, audit.DimensionSeverity)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTopActors(t *testing.T) {
	s := New()
	named := rec("b@x.io", audit.ActionCreate, audit.EntityTestSheets, 100)
	named.ActorName = "Bea"
	seed(t, s,
		rec("c@x.io", audit.ActionCreate, audit.EntityTestSheets, 100),
		named,
		rec("b@x.io", audit.ActionView, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionView, audit.EntityTestSheets, 100),
	)

	actors, err := s.TopActors(context.Background(), audit.Criteria{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []audit.ActorCount{
		{Email: "b@x.io", Name: "Bea", Count: 2},
		{Email: "a@x.io", Count: 1},
	}, actors)
}

func TestTopActorsNameRule(t *testing.T) {
	s := New()
	for _, name := range []string{"Zed", "", "Alex"} {
		r := rec("z@x.io", audit.ActionView, audit.EntityTestSheets, 100)
		r.ActorName = name
		seed(t, s, r)
	}

	actors, err := s.TopActors(context.Background(), audit.Criteria{}, 10)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "Zed", actors[0].Name)
}

func TestDelete(t *testing.T) {
	s := New()
	seed(t, s,
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 100),
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 200),
		rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 201),
	)

	_, err := s.Delete(context.Background(), audit.Criteria{})
	assert.ErrorIs(t, err, audit.ErrUnboundedDelete)
	assert.Equal(t, 3, s.Len())

	deleted, err := s.Delete(context.Background(), audit.Criteria{To: int64Ptr(200)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	rest, err := s.Select(context.Background(), audit.Criteria{}, audit.Page{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(201), rest[0].OccurredAt)
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, rec("a@x.io", audit.ActionCreate, audit.EntityTestSheets, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentInserts(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Insert(context.Background(), rec("a@x.io", audit.ActionView, audit.EntityTestSheets, 1))
		}()
	}
	wg.Wait()

	n, err := s.Count(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	page, err := s.Select(context.Background(), audit.Criteria{}, audit.Page{})
	require.NoError(t, err)
	seen := make(map[int64]bool)
	for _, r := range page {
		seen[r.ID] = true
	}
	assert.Len(t, seen, 50)
}
