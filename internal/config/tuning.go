package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/combfit/internal/physics/kinematics"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrUnsupportedExtension is returned for config files that are neither
// JSON nor YAML.
var ErrUnsupportedExtension = errors.New("unsupported config file extension")

// TuningConfig represents the root configuration for an analysis run.
// Every field is optional; the Get* methods supply defaults for fields
// left unset, so partial configs are safe.
type TuningConfig struct {
	// Final state
	MinQuanta       *int    `json:"min_quanta,omitempty" yaml:"min_quanta,omitempty"`
	MaxQuanta       *int    `json:"max_quanta,omitempty" yaml:"max_quanta,omitempty"`
	RecoilParticle  *string `json:"recoil_particle,omitempty" yaml:"recoil_particle,omitempty"`
	QuantumParticle *string `json:"quantum_particle,omitempty" yaml:"quantum_particle,omitempty"`

	// Pre-filter windows
	CoplanarityWindowDeg *float64 `json:"coplanarity_window_deg,omitempty" yaml:"coplanarity_window_deg,omitempty"`
	MissingMassWindowMeV *float64 `json:"missing_mass_window_mev,omitempty" yaml:"missing_mass_window_mev,omitempty"`

	// Selection
	ProbabilityCutEnabled *bool    `json:"probability_cut_enabled,omitempty" yaml:"probability_cut_enabled,omitempty"`
	ProbabilityCut        *float64 `json:"probability_cut,omitempty" yaml:"probability_cut,omitempty"`

	// Kinematic fit
	FitMaxIterations    *int     `json:"fit_max_iterations,omitempty" yaml:"fit_max_iterations,omitempty"`
	FitVertex           *bool    `json:"fit_vertex,omitempty" yaml:"fit_vertex,omitempty"`
	VertexSigmaZCm      *float64 `json:"vertex_sigma_z_cm,omitempty" yaml:"vertex_sigma_z_cm,omitempty"`
	BeamEnergySigmaMeV  *float64 `json:"beam_energy_sigma_mev,omitempty" yaml:"beam_energy_sigma_mev,omitempty"`
	ConstraintTolerance *float64 `json:"constraint_tolerance,omitempty" yaml:"constraint_tolerance,omitempty"`
	Chi2Tolerance       *float64 `json:"chi2_tolerance,omitempty" yaml:"chi2_tolerance,omitempty"`

	// Tagger timing, ns
	PromptRange  []float64   `json:"prompt_range,omitempty" yaml:"prompt_range,omitempty"`
	RandomRanges [][]float64 `json:"random_ranges,omitempty" yaml:"random_ranges,omitempty"`

	// Runner
	ProgressInterval *string `json:"progress_interval,omitempty" yaml:"progress_interval,omitempty"` // duration string like "3s"
	Workers          *int    `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Spectra
	SpectrumBins   *int     `json:"spectrum_bins,omitempty" yaml:"spectrum_bins,omitempty"`
	SpectrumMaxMeV *float64 `json:"spectrum_max_mev,omitempty" yaml:"spectrum_max_mev,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// in-code default.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		MinQuanta:             ptrInt(c.GetMinQuanta()),
		MaxQuanta:             ptrInt(c.GetMaxQuanta()),
		RecoilParticle:        ptrString(c.GetRecoilParticle()),
		QuantumParticle:       ptrString(c.GetQuantumParticle()),
		CoplanarityWindowDeg:  ptrFloat64(c.GetCoplanarityWindowDeg()),
		MissingMassWindowMeV:  ptrFloat64(c.GetMissingMassWindowMeV()),
		ProbabilityCutEnabled: ptrBool(c.GetProbabilityCutEnabled()),
		ProbabilityCut:        ptrFloat64(c.GetProbabilityCut()),
		FitMaxIterations:      ptrInt(c.GetFitMaxIterations()),
		FitVertex:             ptrBool(c.GetFitVertex()),
		VertexSigmaZCm:        ptrFloat64(c.GetVertexSigmaZCm()),
		BeamEnergySigmaMeV:    ptrFloat64(c.GetBeamEnergySigmaMeV()),
		ConstraintTolerance:   ptrFloat64(c.GetConstraintTolerance()),
		Chi2Tolerance:         ptrFloat64(c.GetChi2Tolerance()),
		PromptRange:           c.GetPromptRange(),
		RandomRanges:          c.GetRandomRanges(),
		ProgressInterval:      ptrString(c.GetProgressInterval().String()),
		Workers:               ptrInt(c.GetWorkers()),
		SpectrumBins:          ptrInt(c.GetSpectrumBins()),
		SpectrumMaxMeV:        ptrFloat64(c.GetSpectrumMaxMeV()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under the max
// file size. Fields omitted from the file retain their default values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/physics/selector/
		"../../../../" + DefaultConfigPath,    // from internal/physics/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GetMinQuanta() < 1 {
		return fmt.Errorf("min_quanta must be at least 1, got %d", c.GetMinQuanta())
	}
	if c.GetMaxQuanta() < c.GetMinQuanta() {
		return fmt.Errorf("max_quanta (%d) must not be below min_quanta (%d)", c.GetMaxQuanta(), c.GetMinQuanta())
	}
	if _, err := kinematics.LookupParticle(c.GetRecoilParticle()); err != nil {
		return fmt.Errorf("recoil_particle: %w", err)
	}
	if _, err := kinematics.LookupParticle(c.GetQuantumParticle()); err != nil {
		return fmt.Errorf("quantum_particle: %w", err)
	}

	if w := c.GetCoplanarityWindowDeg(); w <= 0 || w > 180 {
		return fmt.Errorf("coplanarity_window_deg must be in (0, 180], got %f", w)
	}
	if w := c.GetMissingMassWindowMeV(); w <= 0 {
		return fmt.Errorf("missing_mass_window_mev must be positive, got %f", w)
	}
	if p := c.GetProbabilityCut(); p < 0 || p > 1 {
		return fmt.Errorf("probability_cut must be between 0 and 1, got %f", p)
	}

	if c.GetFitMaxIterations() <= 0 {
		return fmt.Errorf("fit_max_iterations must be positive, got %d", c.GetFitMaxIterations())
	}
	if c.GetFitVertex() && c.GetVertexSigmaZCm() <= 0 {
		return fmt.Errorf("fit_vertex requires a positive vertex_sigma_z_cm, got %f", c.GetVertexSigmaZCm())
	}
	if c.GetVertexSigmaZCm() < 0 {
		return fmt.Errorf("vertex_sigma_z_cm must be non-negative, got %f", c.GetVertexSigmaZCm())
	}
	if c.GetBeamEnergySigmaMeV() <= 0 {
		return fmt.Errorf("beam_energy_sigma_mev must be positive, got %f", c.GetBeamEnergySigmaMeV())
	}
	if c.GetConstraintTolerance() <= 0 || c.GetChi2Tolerance() <= 0 {
		return errors.New("constraint_tolerance and chi2_tolerance must be positive")
	}

	if c.PromptRange != nil {
		if err := checkRange("prompt_range", c.PromptRange); err != nil {
			return err
		}
	}
	for i, r := range c.RandomRanges {
		if err := checkRange(fmt.Sprintf("random_ranges[%d]", i), r); err != nil {
			return err
		}
		p := c.GetPromptRange()
		if r[0] < p[1] && p[0] < r[1] {
			return fmt.Errorf("random_ranges[%d] %v overlaps prompt_range %v", i, r, p)
		}
	}

	if c.ProgressInterval != nil && *c.ProgressInterval != "" {
		if _, err := time.ParseDuration(*c.ProgressInterval); err != nil {
			return fmt.Errorf("invalid progress_interval '%s': %w", *c.ProgressInterval, err)
		}
	}
	if c.GetWorkers() < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.GetWorkers())
	}
	if c.GetSpectrumBins() <= 0 {
		return fmt.Errorf("spectrum_bins must be positive, got %d", c.GetSpectrumBins())
	}
	if c.GetSpectrumMaxMeV() <= 0 {
		return fmt.Errorf("spectrum_max_mev must be positive, got %f", c.GetSpectrumMaxMeV())
	}
	return nil
}

func checkRange(name string, r []float64) error {
	if len(r) != 2 {
		return fmt.Errorf("%s must have 2 elements, got %d", name, len(r))
	}
	if r[0] > r[1] {
		return fmt.Errorf("%s start %f after stop %f", name, r[0], r[1])
	}
	return nil
}

// GetMinQuanta returns the min_quanta value or the default.
func (c *TuningConfig) GetMinQuanta() int {
	if c.MinQuanta == nil {
		return 2
	}
	return *c.MinQuanta
}

// GetMaxQuanta returns the max_quanta value or the default.
func (c *TuningConfig) GetMaxQuanta() int {
	if c.MaxQuanta == nil {
		return 5
	}
	return *c.MaxQuanta
}

// GetRecoilParticle returns the recoil_particle value or the default.
func (c *TuningConfig) GetRecoilParticle() string {
	if c.RecoilParticle == nil || *c.RecoilParticle == "" {
		return "proton"
	}
	return *c.RecoilParticle
}

// GetQuantumParticle returns the quantum_particle value or the default.
func (c *TuningConfig) GetQuantumParticle() string {
	if c.QuantumParticle == nil || *c.QuantumParticle == "" {
		return "photon"
	}
	return *c.QuantumParticle
}

// GetCoplanarityWindowDeg returns the half-width of the coplanarity window.
func (c *TuningConfig) GetCoplanarityWindowDeg() float64 {
	if c.CoplanarityWindowDeg == nil {
		return 25
	}
	return *c.CoplanarityWindowDeg
}

// GetMissingMassWindowMeV returns the full width of the missing-mass window.
func (c *TuningConfig) GetMissingMassWindowMeV() float64 {
	if c.MissingMassWindowMeV == nil {
		return 300
	}
	return *c.MissingMassWindowMeV
}

// GetProbabilityCutEnabled returns the probability_cut_enabled value or the default.
func (c *TuningConfig) GetProbabilityCutEnabled() bool {
	if c.ProbabilityCutEnabled == nil {
		return false // default: floor disabled
	}
	return *c.ProbabilityCutEnabled
}

// GetProbabilityCut returns the probability_cut value or the default.
func (c *TuningConfig) GetProbabilityCut() float64 {
	if c.ProbabilityCut == nil {
		return 0.01
	}
	return *c.ProbabilityCut
}

// GetFitMaxIterations returns the fit_max_iterations value or the default.
func (c *TuningConfig) GetFitMaxIterations() int {
	if c.FitMaxIterations == nil {
		return 20
	}
	return *c.FitMaxIterations
}

// GetFitVertex returns the fit_vertex value or the default.
func (c *TuningConfig) GetFitVertex() bool {
	if c.FitVertex == nil {
		return false
	}
	return *c.FitVertex
}

// GetVertexSigmaZCm returns the vertex_sigma_z_cm value or the default.
func (c *TuningConfig) GetVertexSigmaZCm() float64 {
	if c.VertexSigmaZCm == nil {
		return 0
	}
	return *c.VertexSigmaZCm
}

// GetBeamEnergySigmaMeV returns the beam_energy_sigma_mev value or the default.
func (c *TuningConfig) GetBeamEnergySigmaMeV() float64 {
	if c.BeamEnergySigmaMeV == nil {
		return 2.0
	}
	return *c.BeamEnergySigmaMeV
}

// GetConstraintTolerance returns the constraint_tolerance value or the default.
func (c *TuningConfig) GetConstraintTolerance() float64 {
	if c.ConstraintTolerance == nil {
		return 1e-3
	}
	return *c.ConstraintTolerance
}

// GetChi2Tolerance returns the chi2_tolerance value or the default.
func (c *TuningConfig) GetChi2Tolerance() float64 {
	if c.Chi2Tolerance == nil {
		return 1e-4
	}
	return *c.Chi2Tolerance
}

// GetPromptRange returns the prompt window [start, stop] in ns.
func (c *TuningConfig) GetPromptRange() []float64 {
	if len(c.PromptRange) != 2 {
		return []float64{-3, 2}
	}
	return []float64{c.PromptRange[0], c.PromptRange[1]}
}

// GetRandomRanges returns the random windows in ns.
func (c *TuningConfig) GetRandomRanges() [][]float64 {
	if len(c.RandomRanges) == 0 {
		return [][]float64{{-35, -10}, {10, 35}}
	}
	out := make([][]float64, len(c.RandomRanges))
	for i, r := range c.RandomRanges {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// GetProgressInterval parses and returns the ProgressInterval as a time.Duration.
func (c *TuningConfig) GetProgressInterval() time.Duration {
	if c.ProgressInterval == nil || *c.ProgressInterval == "" {
		return 3 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ProgressInterval)
	if err != nil {
		return 3 * time.Second // default on parse error
	}
	return d
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetSpectrumBins returns the spectrum_bins value or the default.
func (c *TuningConfig) GetSpectrumBins() int {
	if c.SpectrumBins == nil {
		return 1200
	}
	return *c.SpectrumBins
}

// GetSpectrumMaxMeV returns the spectrum_max_mev value or the default.
func (c *TuningConfig) GetSpectrumMaxMeV() float64 {
	if c.SpectrumMaxMeV == nil {
		return 1200
	}
	return *c.SpectrumMaxMeV
}
