package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/combfit/internal/physics/kinematics"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
	"github.com/banshee-data/combfit/internal/physics/selector"
	"github.com/banshee-data/combfit/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func omegaSelection(t *testing.T) *selector.Selection {
	t.Helper()
	pool, err := kinfit.NewPool(2, 3, kinfit.DefaultModel(), kinfit.DefaultSettings())
	require.NoError(t, err)
	cfg := selector.DefaultConfig()
	cfg.MinQuanta, cfg.MaxQuanta = 2, 3
	sel, err := selector.New(cfg, pool)
	require.NoError(t, err)

	ev := testutil.OmegaEvent(1, testutil.OmegaBeamEnergy)
	best, ok := sel.FindBest(ev.TaggerHits[0], ev.Candidates)
	require.True(t, ok)
	return best
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(LatestMigration), version)
	assert.False(t, dirty)

	var fk int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateDownAndUp(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	_, err = s.StartRun("dev", "")
	assert.Error(t, err, "runs table should be gone")

	require.NoError(t, s.MigrateUp())
	_, err = s.StartRun("dev", "")
	assert.NoError(t, err)
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.StartRun("v1.2.3", `{"max_quanta":3}`)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", got.Version)
	assert.Equal(t, `{"max_quanta":3}`, got.ConfigJSON)
	assert.True(t, got.Finished.IsZero())
	assert.Equal(t, run.Started.UnixNano(), got.Started.UnixNano())

	require.NoError(t, s.FinishRun(run.ID, 10, 4, "trials=40"))
	got, err = s.GetRun(run.ID)
	require.NoError(t, err)
	assert.False(t, got.Finished.IsZero())
	assert.Equal(t, int64(10), got.Events)
	assert.Equal(t, int64(4), got.Selections)
	assert.Equal(t, "trials=40", got.Stats)
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	err = s.FinishRun("missing", 0, 0, "")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSinkRoundTrip(t *testing.T) {
	s := openTestStore(t)
	run, err := s.StartRun("dev", "")
	require.NoError(t, err)

	sel := omegaSelection(t)
	sink := s.Sink(run.ID)
	for id := int64(1); id <= 3; id++ {
		ev := testutil.OmegaEvent(id, testutil.OmegaBeamEnergy)
		require.NoError(t, sink.Consume(ev, ev.TaggerHits[0], sel))
	}
	assert.Equal(t, int64(3), sink.Count())

	recs, err := s.ListSelections(run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	r := recs[0]
	assert.Equal(t, run.ID, r.RunID)
	assert.Equal(t, int64(1), r.EventID)
	assert.Equal(t, 17, r.TaggerChannel)
	assert.InDelta(t, 0.5, r.TaggerTime, 1e-12)
	assert.Equal(t, testutil.OmegaBeamEnergy, r.BeamEnergy)
	assert.Equal(t, 3, r.Multiplicity)
	assert.Equal(t, 0, r.Rotation)
	assert.Equal(t, 3, r.NDF)
	assert.Greater(t, r.Probability, 0.999)
	assert.InDelta(t, kinematics.Omega.Mass, r.RawMass, 1e-6)
	assert.InDelta(t, kinematics.Omega.Mass, r.FittedMass, 1e-2)
	assert.InDelta(t, kinematics.Proton.Mass, r.MissingMass, 1e-6)
	assert.NotZero(t, r.ID)

	other, err := s.ListSelections("other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSelectionsCascadeWithRun(t *testing.T) {
	s := openTestStore(t)
	run, err := s.StartRun("dev", "")
	require.NoError(t, err)

	sel := omegaSelection(t)
	ev := testutil.OmegaEvent(1, testutil.OmegaBeamEnergy)
	require.NoError(t, s.Sink(run.ID).Consume(ev, ev.TaggerHits[0], sel))

	_, err = s.DB().Exec(`DELETE FROM runs WHERE run_id = ?`, run.ID)
	require.NoError(t, err)
	recs, err := s.ListSelections(run.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInsertSelection_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	ev := testutil.OmegaEvent(1, testutil.OmegaBeamEnergy)
	err := s.Sink("no-such-run").Consume(ev, ev.TaggerHits[0], omegaSelection(t))
	assert.Error(t, err, "foreign key should reject unknown run")
}
