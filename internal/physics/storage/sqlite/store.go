package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/combfit/internal/physics"
	"github.com/banshee-data/combfit/internal/physics/event"
	"github.com/banshee-data/combfit/internal/physics/kinfit"
	"github.com/banshee-data/combfit/internal/physics/selector"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the results database.
type Store struct {
	db *sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens (creating if needed) the database at path, applies PRAGMAs
// and migrates the schema to the latest version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps PRAGMAs and the WAL writer consistent.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// isSQLiteBusy reports whether err is a transient lock error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as locked. Other errors are returned immediately.
func retryOnBusy(fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(5),
		retry.Delay(10*time.Millisecond),
		retry.MaxDelay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isSQLiteBusy),
		retry.OnRetry(func(n uint, err error) {
			physics.Diagf("sqlite busy, retry %d: %v", n+1, err)
		}),
	)
}

// Run is one analysis run.
type Run struct {
	ID         string
	Started    time.Time
	Finished   time.Time // zero while running
	Version    string
	ConfigJSON string
	Events     int64
	Selections int64
	Stats      string
}

// StartRun inserts a new run and returns it.
func (s *Store) StartRun(version, configJSON string) (*Run, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	run := &Run{
		ID:         uuid.NewString(),
		Started:    time.Now().UTC(),
		Version:    version,
		ConfigJSON: configJSON,
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`INSERT INTO runs (run_id, started_unix_ns, version, config_json) VALUES (?, ?, ?, ?)`,
			run.ID, run.Started.UnixNano(), run.Version, run.ConfigJSON)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the final counters of a run.
func (s *Store) FinishRun(id string, events, selections int64, stats string) error {
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`UPDATE runs SET finished_unix_ns = ?, events = ?, selections = ?, stats = ? WHERE run_id = ?`,
			time.Now().UTC().UnixNano(), events, selections, stats, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRow(`SELECT run_id, started_unix_ns, finished_unix_ns, version, config_json, events, selections, stats
		FROM runs WHERE run_id = ?`, id).Scan(
		&run.ID, &started, &finished, &run.Version, &run.ConfigJSON, &run.Events, &run.Selections, &run.Stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run.Started = time.Unix(0, started).UTC()
	if finished.Valid {
		run.Finished = time.Unix(0, finished.Int64).UTC()
	}
	return &run, nil
}

// SelectionRecord is a stored selection.
type SelectionRecord struct {
	ID               int64
	RunID            string
	EventID          int64
	TaggerChannel    int
	TaggerTime       float64
	BeamEnergy       float64
	Multiplicity     int
	Rotation         int
	Probability      float64
	ChiSquare        float64
	NDF              int
	Iterations       int
	FittedBeamEnergy float64
	RawMass          float64
	FittedMass       float64
	Coplanarity      float64
	MissingMass      float64
}

// NewSelectionRecord flattens a selection for storage.
func NewSelectionRecord(runID string, ev *event.Event, hit event.TaggerHit, sel *selector.Selection) SelectionRecord {
	var raw float64
	if len(sel.FittedQuanta) == len(sel.Quanta) {
		hyps := make([]event.Hypothesis, len(sel.Quanta))
		for i, c := range sel.Quanta {
			hyps[i] = event.Quantum(sel.FittedQuanta[i].Type, c)
		}
		raw = event.SumLorentzVec(hyps).M()
	}
	return SelectionRecord{
		RunID:            runID,
		EventID:          ev.ID,
		TaggerChannel:    hit.Channel,
		TaggerTime:       ev.RelativeTime(hit),
		BeamEnergy:       hit.PhotonEnergy,
		Multiplicity:     sel.Multiplicity(),
		Rotation:         sel.Rotation,
		Probability:      sel.Probability,
		ChiSquare:        sel.Outcome.ChiSquare,
		NDF:              sel.Outcome.NDF,
		Iterations:       sel.Outcome.Iterations,
		FittedBeamEnergy: sel.Outcome.BeamEnergy,
		RawMass:          raw,
		FittedMass:       kinfit.SumParticles(sel.FittedQuanta).M(),
		Coplanarity:      sel.Prefilter.Coplanarity,
		MissingMass:      sel.Prefilter.MissingMass,
	}
}

// InsertSelection stores r and sets its ID.
func (s *Store) InsertSelection(r *SelectionRecord) error {
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`INSERT INTO selections (
			run_id, event_id, tagger_channel, tagger_time, beam_energy, multiplicity, rotation,
			probability, chi_square, ndf, iterations, fitted_beam_energy, raw_mass, fitted_mass,
			coplanarity, missing_mass
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.EventID, r.TaggerChannel, r.TaggerTime, r.BeamEnergy, r.Multiplicity, r.Rotation,
			r.Probability, r.ChiSquare, r.NDF, r.Iterations, r.FittedBeamEnergy, r.RawMass, r.FittedMass,
			r.Coplanarity, r.MissingMass)
		if err != nil {
			return err
		}
		r.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("insert selection for event %d: %w", r.EventID, err)
	}
	return nil
}

// ListSelections returns the selections of a run ordered by event.
func (s *Store) ListSelections(runID string) ([]SelectionRecord, error) {
	rows, err := s.db.Query(`SELECT selection_id, run_id, event_id, tagger_channel, tagger_time, beam_energy,
			multiplicity, rotation, probability, chi_square, ndf, iterations, fitted_beam_energy,
			raw_mass, fitted_mass, coplanarity, missing_mass
		FROM selections WHERE run_id = ? ORDER BY event_id, selection_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	defer rows.Close()

	var out []SelectionRecord
	for rows.Next() {
		var r SelectionRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.EventID, &r.TaggerChannel, &r.TaggerTime, &r.BeamEnergy,
			&r.Multiplicity, &r.Rotation, &r.Probability, &r.ChiSquare, &r.NDF, &r.Iterations,
			&r.FittedBeamEnergy, &r.RawMass, &r.FittedMass, &r.Coplanarity, &r.MissingMass); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSink records every selection it consumes under one run.
type RunSink struct {
	store *Store
	runID string
	count int64
}

// Sink returns a pipeline sink writing to run runID.
func (s *Store) Sink(runID string) *RunSink {
	return &RunSink{store: s, runID: runID}
}

// Consume implements the pipeline sink contract.
func (k *RunSink) Consume(ev *event.Event, hit event.TaggerHit, sel *selector.Selection) error {
	r := NewSelectionRecord(k.runID, ev, hit, sel)
	if err := k.store.InsertSelection(&r); err != nil {
		return err
	}
	k.count++
	return nil
}

// Count is the number of selections written.
func (k *RunSink) Count() int64 { return k.count }
