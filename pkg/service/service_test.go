package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnavshah/role-allocator-go/pkg/archive"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/events"
	"github.com/arnavshah/role-allocator-go/pkg/metrics"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingArchiver struct {
	records []*archive.Record
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, rec *archive.Record) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.records = append(a.records, rec)
	return "allocations/" + rec.RunID + ".json", nil
}

type fixture struct {
	svc   *Service
	store *database.Store
	pub   *recordingPublisher
	arch  *recordingArchiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(database.Options{DataPath: fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := database.NewStore(db)
	pub := &recordingPublisher{}
	arch := &recordingArchiver{}
	svc := New(Config{
		Store:    store,
		Events:   pub,
		Archiver: arch,
		Metrics:  metrics.New(prometheus.NewRegistry(), "test"),
		Trials:   20,
	})
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("run-%d", ids)
	}
	return &fixture{svc: svc, store: store, pub: pub, arch: arch}
}

func (f *fixture) seed(t *testing.T, roles ...models.Role) {
	t.Helper()
	for _, r := range roles {
		if r.Description == "" {
			r.Description = r.Title + " duty"
		}
		_, err := f.svc.CreateRole(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestRoleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []models.Role{
		{Title: "t", Description: "d", Capacity: 1},
		{ID: "a", Description: "d", Capacity: 1},
		{ID: "a", Title: "t", Capacity: 1},
		{ID: "a", Title: "t", Description: "d", Capacity: 0},
	}
	for _, r := range cases {
		_, err := f.svc.CreateRole(ctx, r)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}

	got, err := f.svc.CreateRole(ctx, models.Role{ID: " a ", Title: " Usher ", Description: "d", Capacity: 2})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "Usher", got.Title)

	_, err = f.svc.CreateRole(ctx, models.Role{ID: "a", Title: "x", Description: "d", Capacity: 1})
	assert.ErrorIs(t, err, database.ErrConflict)
}

func TestSavePreference_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, models.Role{ID: "a", Title: "A", Capacity: 1}, models.Role{ID: "b", Title: "B", Capacity: 1})

	_, err := f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: []string{"a", "zzz"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: []string{"a", "a"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tooMany := make([]string, models.MaxPreferences+1)
	for i := range tooMany {
		tooMany[i] = "a"
	}
	_, err = f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: tooMany})
	assert.ErrorIs(t, err, ErrInvalidInput)

	pref, err := f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: []string{"b", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, pref.Preferences)
}

func TestRunAllocation_NoPreferences(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Role{ID: "a", Title: "A", Capacity: 1})

	_, err := f.svc.RunAllocation(context.Background(), "admin")
	assert.ErrorIs(t, err, ErrNoPreferences)
	assert.Empty(t, f.pub.types())
}

func TestRunAllocation_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t,
		models.Role{ID: "a", Title: "A", Capacity: 1},
		models.Role{ID: "b", Title: "B", Capacity: 1},
		models.Role{ID: "c", Title: "C", Capacity: 1},
	)
	for i, id := range []string{"a", "b", "c"} {
		_, err := f.svc.SavePreference(ctx, fmt.Sprintf("u%d", i), models.PreferenceInput{UserName: "P", Preferences: []string{id}})
		require.NoError(t, err)
	}

	out, err := f.svc.RunAllocation(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Run.ID)
	assert.Equal(t, "allocations/run-1.json", out.ArchiveKey)
	assert.Equal(t, 1.0, out.Result.MaxParticipantDissatisfaction)
	assert.Equal(t, 3, out.Run.Assigned)
	assert.Empty(t, out.Run.UnassignedRoleIDs)

	_, err = f.svc.Results(ctx)
	assert.ErrorIs(t, err, ErrNotPublished, "a new run starts unpublished")

	_, err = f.svc.Publish(ctx, "admin")
	require.NoError(t, err)
	results, err := f.svc.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, a := range results {
		assert.Equal(t, 1, a.PreferenceRank)
	}

	// a fresh run resets the publish flag
	_, err = f.svc.RunAllocation(ctx, "admin")
	require.NoError(t, err)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Completed)

	runs, err := f.svc.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Len(t, f.arch.records, 2)

	_, err = f.svc.Unpublish(ctx, "admin")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteResults(ctx, "admin"))
	_, err = f.svc.Publish(ctx, "admin")
	assert.ErrorIs(t, err, ErrNoAssignments)

	assert.Equal(t, []string{
		events.TypeAllocationCompleted,
		events.TypeAllocationPublished,
		events.TypeAllocationCompleted,
		events.TypeAllocationUnpublished,
		events.TypeResultsDeleted,
	}, f.pub.types())
}

func TestRunAllocation_SideChannelFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.err = errors.New("kafka down")
	f.arch.err = errors.New("s3 down")
	f.seed(t, models.Role{ID: "a", Title: "A", Capacity: 2})
	_, err := f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: []string{"a"}})
	require.NoError(t, err)

	out, err := f.svc.RunAllocation(ctx, "admin")
	require.NoError(t, err)
	assert.Empty(t, out.ArchiveKey)
	assert.Equal(t, 1, out.Run.RelaxedCount)
}

func TestReassign_RecomputesRankAndReportsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t,
		models.Role{ID: "a", Title: "A", Capacity: 1},
		models.Role{ID: "b", Title: "B", Capacity: 1},
		models.Role{ID: "c", Title: "C", Capacity: 1},
	)
	_, err := f.svc.SavePreference(ctx, "u1", models.PreferenceInput{UserName: "Ann", Preferences: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = f.svc.SavePreference(ctx, "u2", models.PreferenceInput{UserName: "Bo", Preferences: []string{"b", "a"}})
	require.NoError(t, err)
	_, err = f.svc.RunAllocation(ctx, "admin")
	require.NoError(t, err)

	assignments, err := f.svc.Assignments(ctx)
	require.NoError(t, err)
	var target models.Assignment
	for _, a := range assignments {
		if a.UserID == "u2" && a.RoleID == "b" {
			target = a
		}
	}
	require.NotEmpty(t, target.Key, "u2 should hold their first choice")

	moved, conflicts, err := f.svc.Reassign(ctx, target.Key, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", moved.RoleID)
	assert.Equal(t, "A", moved.RoleName)
	assert.Equal(t, 2, moved.PreferenceRank)
	assert.Equal(t, 3.0, moved.Cost)
	assert.Equal(t, []models.RoleConflict{{RoleID: "a", Assigned: 2, Capacity: 1}}, conflicts)

	_, _, err = f.svc.Reassign(ctx, target.Key, "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = f.svc.Reassign(ctx, "missing#1", "a")
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteRole(ctx, "a"), ErrRoleInUse)
}

func TestAllocate_Stateless(t *testing.T) {
	f := newFixture(t)
	seed := int64(7)
	in := models.AllocateInput{
		Roles: []models.Role{{ID: "A", Title: "A", Capacity: 1}, {ID: "B", Title: "B", Capacity: 1}},
		Preferences: []models.Preference{
			{UserID: "p", Preferences: []string{"A"}},
			{UserID: "q", Preferences: []string{"B"}},
		},
		Seed: &seed,
	}
	res, err := f.svc.Allocate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Seed)
	assert.Equal(t, 20, res.Trials)
	assert.Equal(t, 1.0, res.SatisfactionScore)

	in.Roles[1].Capacity = 0
	_, err = f.svc.Allocate(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := f.svc.Validate(models.AllocateInput{Roles: []models.Role{{ID: "A", Capacity: 3}}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAllocate_StatelessLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roles := []models.Role{{ID: "A", Title: "A", Capacity: 1}}

	for _, trials := range []int{-1, models.MaxTrials + 1, 2000000000} {
		_, err := f.svc.Allocate(ctx, models.AllocateInput{
			Roles:       roles,
			Preferences: []models.Preference{{UserID: "p", Preferences: []string{"A"}}},
			Trials:      trials,
		})
		assert.ErrorIs(t, err, ErrInvalidInput, "trials=%d", trials)
	}

	long := make([]string, models.MaxPreferences+1)
	for i := range long {
		long[i] = fmt.Sprintf("r%d", i)
	}
	_, err := f.svc.Allocate(ctx, models.AllocateInput{
		Roles:       roles,
		Preferences: []models.Preference{{UserID: "p", Preferences: long}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := f.svc.Allocate(ctx, models.AllocateInput{
		Roles:       roles,
		Preferences: []models.Preference{{UserID: "p", Preferences: []string{"A"}}},
		Trials:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Trials)
	assert.False(t, res.Shortfall)
}

func TestRuns_LimitCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < MaxRunsLimit+5; i++ {
		require.NoError(t, f.store.RecordRun(ctx, &database.AllocationRun{
			ID:        fmt.Sprintf("r-%03d", i),
			CreatedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		}))
	}
	runs, err := f.svc.Runs(ctx, 1000000)
	require.NoError(t, err)
	assert.Len(t, runs, MaxRunsLimit)
	assert.Equal(t, fmt.Sprintf("r-%03d", MaxRunsLimit+4), runs[0].ID)
}
