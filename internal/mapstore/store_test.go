package mapstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/scanmatch"
	"github.com/banshee-data/scanmatch/internal/statmap"
	"github.com/banshee-data/scanmatch/internal/testutil"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	clock.AutoStep(time.Millisecond)
	s, err := Open(filepath.Join(t.TempDir(), "maps.db"), Options{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "maps.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	id, err := s.SaveCountingMap("room", testutil.CountingMap(t, testutil.DefaultRoom.Walls(0.05), 0.2, 16))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()
	info, err := s.GetMap(id)
	require.NoError(t, err)
	assert.Equal(t, "room", info.Name)
}

func TestOpen_InMemory(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:", Options{})
	require.NoError(t, err)
	defer s.Close()
	maps, err := s.ListMaps()
	require.NoError(t, err)
	assert.Empty(t, maps)
}

func TestCountingMapRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	cm := testutil.CountingMap(t, testutil.DefaultRoom.Walls(0.02), 0.2, 16)

	id, err := s.SaveCountingMap("room", cm)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	got, err := s.LoadCountingMap(id)
	require.NoError(t, err)
	assert.Equal(t, cm.Points(), got.Points())

	want, err := cm.EncodePlanes()
	require.NoError(t, err)
	have, err := got.EncodePlanes()
	require.NoError(t, err)
	assert.Equal(t, want, have)

	info, err := s.GetMap(id)
	require.NoError(t, err)
	assert.Equal(t, KindCounting, info.Kind)
	assert.Equal(t, 0.2, info.CellSize)
	assert.Equal(t, 16, info.UnitCells)
	assert.Equal(t, cm.Points(), info.Points)
	assert.Equal(t, epoch.UnixNano(), info.CreatedAtNs)
	var raw int
	for _, p := range want {
		raw += len(p)
	}
	assert.Equal(t, int64(raw), info.RawBytes)
	assert.Less(t, info.StoredBytes, info.RawBytes, "mostly empty planes compress well")
}

func TestProbabilityMapRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	pm := testutil.RoomMap(t, 0.05)

	id, err := s.SaveProbabilityMap("room", pm)
	require.NoError(t, err)
	got, err := s.LoadProbabilityMap(id)
	require.NoError(t, err)
	assert.Equal(t, pm.Stats().Populated, got.Stats().Populated)

	scan := testutil.RoomScan(0.3, -0.2, 0.1)
	pose := scanmatch.Pose{X: 0.3, Y: -0.2, Theta: 0.1}
	assert.Equal(t, scanmatch.Likelihood(pm, pose, scan), scanmatch.Likelihood(got, pose, scan))
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	id, err := s.SaveProbabilityMap("blob", testutil.BlobMap(t))
	require.NoError(t, err)

	_, err = s.LoadCountingMap(id)
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = s.LoadProbabilityMap("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMap("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDeleteMaps(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	first, err := s.SaveProbabilityMap("blob", testutil.BlobMap(t))
	require.NoError(t, err)
	second, err := s.SaveCountingMap("walls", testutil.CountingMap(t, testutil.DefaultRoom.Walls(0.1), 0.2, 16))
	require.NoError(t, err)

	maps, err := s.ListMaps()
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, first, maps[0].MapID)
	assert.Equal(t, second, maps[1].MapID)
	assert.Less(t, maps[0].CreatedAtNs, maps[1].CreatedAtNs)

	require.NoError(t, s.DeleteMap(first))
	assert.ErrorIs(t, s.DeleteMap(first), ErrNotFound)

	maps, err = s.ListMaps()
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "walls", maps[0].Name)

	var planes int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM map_planes WHERE map_id = ?`, first).Scan(&planes))
	assert.Zero(t, planes, "planes go with their map")
}

func TestRuns(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	mapID, err := s.SaveProbabilityMap("blob", testutil.BlobMap(t))
	require.NoError(t, err)

	res := scanmatch.Result{
		Optimizer:  "newton",
		Pose:       scanmatch.Pose{X: 2.5, Y: 2.5, Theta: 0.001},
		Likelihood: 1234.5,
		Iterations: 4,
		Failures:   1,
		Converged:  true,
		Trace: []scanmatch.Step{
			{Iteration: 1, Error: "scanmatch: numerical failure"},
			{Iteration: 2, Pose: scanmatch.Pose{X: 2.5}, Likelihood: 1000},
		},
	}
	runID, err := s.RecordRun(mapID, res, 3*time.Millisecond)
	require.NoError(t, err)
	_, err = s.RecordRun(mapID, scanmatch.Result{Optimizer: "qmc", Iterations: 50}, 0)
	require.NoError(t, err)

	runs, err := s.ListRuns(mapID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, mapID, runs[0].MapID)
	assert.Equal(t, res, runs[0].Result)
	assert.Equal(t, 3*time.Millisecond, runs[0].Duration)
	assert.Nil(t, runs[1].Result.Trace)
	assert.False(t, runs[1].Result.Converged)

	// Runs need a map, and go with it.
	_, err = s.RecordRun("missing", res, 0)
	assert.Error(t, err)
	require.NoError(t, s.DeleteMap(mapID))
	runs, err = s.ListRuns(mapID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveRejectsEmptyMap(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	_, err := s.SaveCountingMap("empty", &statmap.CountingMap{})
	assert.Error(t, err)
}
