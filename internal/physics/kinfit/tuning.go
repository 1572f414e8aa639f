package kinfit

import "github.com/banshee-data/combfit/internal/config"

// SettingsFromTuning builds solver settings from a loaded TuningConfig.
func SettingsFromTuning(cfg *config.TuningConfig) Settings {
	s := DefaultSettings()
	s.MaxIterations = cfg.GetFitMaxIterations()
	s.ConstraintTolerance = cfg.GetConstraintTolerance()
	s.ChiSquareTolerance = cfg.GetChi2Tolerance()
	s.BeamEnergySigma = cfg.GetBeamEnergySigmaMeV()
	s.FitVertex = cfg.GetFitVertex()
	s.VertexSigmaZ = cfg.GetVertexSigmaZCm()
	return s
}

// PoolFromTuning builds a Pool covering the configured multiplicity range
// with the default uncertainty model.
func PoolFromTuning(cfg *config.TuningConfig) (*Pool, error) {
	return NewPool(cfg.GetMinQuanta(), cfg.GetMaxQuanta(), DefaultModel(), SettingsFromTuning(cfg))
}
