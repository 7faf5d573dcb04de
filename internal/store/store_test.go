package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opweave/opweave/internal/ir"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func collection(endpoint string, scenarios ...string) *ir.ScenarioCollection {
	c := &ir.ScenarioCollection{Endpoint: endpoint}
	for _, id := range scenarios {
		c.Scenarios = append(c.Scenarios, &ir.EndpointScenario{ID: id, Endpoint: endpoint})
	}
	return c
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestStore_WriteRun_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := Run{ID: "run-1", CreatedAt: time.Now().UTC(), GraphFingerprint: "fp-1"}

	require.NoError(t, s.WriteRun(ctx, run))
	require.NoError(t, s.WriteRun(ctx, run))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_CreateRun_PersistsAndReturns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	loaded, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", loaded.GraphFingerprint)
	assert.WithinDuration(t, run.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestStore_CollectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)

	c := collection("getUser", "scenario-1", "scenario-2")
	c.RequiredSemanticTypes = []string{"UserKey"}
	require.NoError(t, s.WriteCollection(ctx, run.ID, "fp-1", c))

	loaded, err := s.GetCollection(ctx, run.ID, "getUser")
	require.NoError(t, err)
	assert.Equal(t, c.Endpoint, loaded.Endpoint)
	assert.Equal(t, c.RequiredSemanticTypes, loaded.RequiredSemanticTypes)
	require.Len(t, loaded.Scenarios, 2)
	assert.Equal(t, "scenario-1", loaded.Scenarios[0].ID)
}

func TestStore_WriteCollection_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)

	require.NoError(t, s.WriteCollection(ctx, run.ID, "fp-1", collection("getUser", "scenario-1")))
	require.NoError(t, s.WriteCollection(ctx, run.ID, "fp-1", collection("getUser", "scenario-1", "scenario-2")))

	loaded, err := s.GetCollection(ctx, run.ID, "getUser")
	require.NoError(t, err)
	assert.Len(t, loaded.Scenarios, 1)
}

func TestStore_GetCollection_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCollection(context.Background(), "run-x", "getUser")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListEndpoints_Sorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)

	require.NoError(t, s.WriteCollection(ctx, run.ID, "fp-1", collection("updateUser")))
	require.NoError(t, s.WriteCollection(ctx, run.ID, "fp-1", collection("createUser")))

	endpoints, err := s.ListEndpoints(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"createUser", "updateUser"}, endpoints)
}

func TestStore_DiffRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	oldRun, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)
	newRun, err := s.CreateRun(ctx, "fp-2")
	require.NoError(t, err)

	require.NoError(t, s.WriteCollection(ctx, oldRun.ID, "fp-1", collection("getUser", "scenario-1")))
	require.NoError(t, s.WriteCollection(ctx, oldRun.ID, "fp-1", collection("deleteUser", "scenario-1")))
	require.NoError(t, s.WriteCollection(ctx, newRun.ID, "fp-2", collection("getUser", "scenario-1", "scenario-2")))
	require.NoError(t, s.WriteCollection(ctx, newRun.ID, "fp-2", collection("createUser", "scenario-1")))

	diff, err := s.DiffRuns(ctx, oldRun.ID, newRun.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"createUser"}, diff.Added)
	assert.Equal(t, []string{"deleteUser"}, diff.Removed)
	assert.Equal(t, []string{"getUser"}, diff.Changed)
	assert.False(t, diff.Empty())
}

func TestStore_DiffRuns_IdenticalRunsAreEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)
	b, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)

	require.NoError(t, s.WriteCollection(ctx, a.ID, "fp-1", collection("getUser", "scenario-1")))
	require.NoError(t, s.WriteCollection(ctx, b.ID, "fp-1", collection("getUser", "scenario-1")))

	diff, err := s.DiffRuns(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestStore_DiffRuns_UnknownRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "fp-1")
	require.NoError(t, err)

	_, err = s.DiffRuns(ctx, run.ID, "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}
