package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Optimizer names accepted by the optimizer key.
const (
	OptimizerNewton     = "newton"
	OptimizerMonteCarlo = "montecarlo"
	OptimizerQMC        = "qmc"
	OptimizerHybrid     = "hybrid"
)

// TuningConfig holds the mapping and matching parameters. Every field is
// optional; the Get* methods supply defaults for fields left unset.
type TuningConfig struct {
	// Map params
	CellSize    *float64 `json:"cell_size,omitempty"`    // metres
	BlockCells  *int     `json:"block_cells,omitempty"`  // cells per block side
	SensorError *float64 `json:"sensor_error,omitempty"` // metres, regularises covariances
	MapMode     *string  `json:"map_mode,omitempty"`     // "full" or "ndt"

	// Optimizer params
	Optimizer     *string    `json:"optimizer,omitempty"`
	Particles     *int       `json:"particles,omitempty"`
	ResampleAlpha *float64   `json:"resample_alpha,omitempty"`
	InitialCov    *[]float64 `json:"initial_cov,omitempty"`  // diagonal variances x, y, θ
	ResampleCov   *[]float64 `json:"resample_cov,omitempty"` // diagonal variances x, y, θ
	QMCResolution *int       `json:"qmc_resolution,omitempty"`
	QMCMinCov     *[]float64 `json:"qmc_min_cov,omitempty"` // diagonal variances x, y, θ
	PositionGain  *bool      `json:"position_gain,omitempty"`
	RandomSeed    *uint64    `json:"random_seed,omitempty"`

	// Convergence params
	ConvergeDistance *float64 `json:"converge_distance,omitempty"`  // metres
	ConvergeAngleDeg *float64 `json:"converge_angle_deg,omitempty"` // degrees
	MaxIterations    *int     `json:"max_iterations,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

func ptrDiag(a, b, c float64) *[]float64 {
	v := []float64{a, b, c}
	return &v
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to the
// value its Get* method falls back to.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	ic, rc, mc := e.GetInitialCov(), e.GetResampleCov(), e.GetQMCMinCov()
	return &TuningConfig{
		CellSize:         ptrFloat64(e.GetCellSize()),
		BlockCells:       ptrInt(e.GetBlockCells()),
		SensorError:      ptrFloat64(e.GetSensorError()),
		MapMode:          ptrString(e.GetMapMode()),
		Optimizer:        ptrString(e.GetOptimizer()),
		Particles:        ptrInt(e.GetParticles()),
		ResampleAlpha:    ptrFloat64(e.GetResampleAlpha()),
		InitialCov:       ptrDiag(ic[0], ic[1], ic[2]),
		ResampleCov:      ptrDiag(rc[0], rc[1], rc[2]),
		QMCResolution:    ptrInt(e.GetQMCResolution()),
		QMCMinCov:        ptrDiag(mc[0], mc[1], mc[2]),
		PositionGain:     ptrBool(e.GetPositionGain()),
		RandomSeed:       ptrUint64(e.GetRandomSeed()),
		ConvergeDistance: ptrFloat64(e.GetConvergeDistance()),
		ConvergeAngleDeg: ptrFloat64(e.GetConvergeAngleDeg()),
		MaxIterations:    ptrInt(e.GetMaxIterations()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
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
		"../" + DefaultConfigPath,       // from cmd/scanmatch/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
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
	if c.CellSize != nil && !(*c.CellSize > 0 && !math.IsInf(*c.CellSize, 0)) {
		return fmt.Errorf("cell_size must be positive, got %g", *c.CellSize)
	}
	if c.BlockCells != nil && *c.BlockCells < 1 {
		return fmt.Errorf("block_cells must be at least 1, got %d", *c.BlockCells)
	}
	if c.SensorError != nil && !(*c.SensorError >= 0) {
		return fmt.Errorf("sensor_error must be non-negative, got %g", *c.SensorError)
	}
	if c.MapMode != nil {
		switch *c.MapMode {
		case "full", "ndt":
		default:
			return fmt.Errorf("map_mode must be \"full\" or \"ndt\", got %q", *c.MapMode)
		}
	}
	if c.Optimizer != nil {
		switch *c.Optimizer {
		case OptimizerNewton, OptimizerMonteCarlo, OptimizerQMC, OptimizerHybrid:
		default:
			return fmt.Errorf("unknown optimizer %q", *c.Optimizer)
		}
	}
	if c.Particles != nil && *c.Particles < 1 {
		return fmt.Errorf("particles must be at least 1, got %d", *c.Particles)
	}
	if c.ResampleAlpha != nil && !(*c.ResampleAlpha >= 0 && *c.ResampleAlpha <= 1) {
		return fmt.Errorf("resample_alpha must be between 0 and 1, got %g", *c.ResampleAlpha)
	}
	if err := validateDiag("initial_cov", c.InitialCov, false); err != nil {
		return err
	}
	if err := validateDiag("resample_cov", c.ResampleCov, true); err != nil {
		return err
	}
	if err := validateDiag("qmc_min_cov", c.QMCMinCov, true); err != nil {
		return err
	}
	if c.QMCResolution != nil && *c.QMCResolution < 1 {
		return fmt.Errorf("qmc_resolution must be at least 1, got %d", *c.QMCResolution)
	}
	if c.ConvergeDistance != nil && !(*c.ConvergeDistance > 0) {
		return fmt.Errorf("converge_distance must be positive, got %g", *c.ConvergeDistance)
	}
	if c.ConvergeAngleDeg != nil && !(*c.ConvergeAngleDeg > 0) {
		return fmt.Errorf("converge_angle_deg must be positive, got %g", *c.ConvergeAngleDeg)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	return nil
}

func validateDiag(name string, v *[]float64, allowZero bool) error {
	if v == nil {
		return nil
	}
	if len(*v) != 3 {
		return fmt.Errorf("%s must have 3 elements (x, y, theta), got %d", name, len(*v))
	}
	for i, x := range *v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || (!allowZero && x == 0) {
			return fmt.Errorf("%s[%d] must be a positive variance, got %g", name, i, x)
		}
	}
	return nil
}

// GetCellSize returns the cell_size value or the default.
func (c *TuningConfig) GetCellSize() float64 {
	if c.CellSize == nil {
		return 0.2 // default
	}
	return *c.CellSize
}

// GetBlockCells returns the block_cells value or the default.
func (c *TuningConfig) GetBlockCells() int {
	if c.BlockCells == nil {
		return 16 // default
	}
	return *c.BlockCells
}

// GetSensorError returns the sensor_error value or the default.
func (c *TuningConfig) GetSensorError() float64 {
	if c.SensorError == nil {
		return 0.02 // default
	}
	return *c.SensorError
}

// GetMapMode returns the map_mode value or the default.
func (c *TuningConfig) GetMapMode() string {
	if c.MapMode == nil {
		return "full" // default
	}
	return *c.MapMode
}

// GetOptimizer returns the optimizer value or the default.
func (c *TuningConfig) GetOptimizer() string {
	if c.Optimizer == nil {
		return OptimizerHybrid // default
	}
	return *c.Optimizer
}

// GetParticles returns the particles value or the default.
func (c *TuningConfig) GetParticles() int {
	if c.Particles == nil {
		return 200 // default
	}
	return *c.Particles
}

// GetResampleAlpha returns the resample_alpha value or the default.
func (c *TuningConfig) GetResampleAlpha() float64 {
	if c.ResampleAlpha == nil {
		return 0.1 // default
	}
	return *c.ResampleAlpha
}

// GetInitialCov returns the initial_cov diagonal or the default
// (σ 0.2 m, 0.2 m, 5°).
func (c *TuningConfig) GetInitialCov() [3]float64 {
	return diagOr(c.InitialCov, [3]float64{0.04, 0.04, 0.0076})
}

// GetResampleCov returns the resample_cov diagonal or the default
// (σ 2 cm, 2 cm, 1°).
func (c *TuningConfig) GetResampleCov() [3]float64 {
	return diagOr(c.ResampleCov, [3]float64{0.0004, 0.0004, 0.0003})
}

// GetQMCResolution returns the qmc_resolution value or the default.
func (c *TuningConfig) GetQMCResolution() int {
	if c.QMCResolution == nil {
		return 5 // default
	}
	return *c.QMCResolution
}

// GetQMCMinCov returns the qmc_min_cov diagonal or the default
// (σ 1 mm, 1 mm, 0.05°).
func (c *TuningConfig) GetQMCMinCov() [3]float64 {
	return diagOr(c.QMCMinCov, [3]float64{1e-6, 1e-6, 7.6e-7})
}

func diagOr(v *[]float64, def [3]float64) [3]float64 {
	if v == nil || len(*v) != 3 {
		return def
	}
	return [3]float64{(*v)[0], (*v)[1], (*v)[2]}
}

// GetPositionGain returns the position_gain value or the default.
func (c *TuningConfig) GetPositionGain() bool {
	if c.PositionGain == nil {
		return false // default
	}
	return *c.PositionGain
}

// GetRandomSeed returns the random_seed value or the default.
func (c *TuningConfig) GetRandomSeed() uint64 {
	if c.RandomSeed == nil {
		return 1 // default
	}
	return *c.RandomSeed
}

// GetConvergeDistance returns the converge_distance value or the default.
func (c *TuningConfig) GetConvergeDistance() float64 {
	if c.ConvergeDistance == nil {
		return 0.0001 // default
	}
	return *c.ConvergeDistance
}

// GetConvergeAngleDeg returns the converge_angle_deg value or the default.
func (c *TuningConfig) GetConvergeAngleDeg() float64 {
	if c.ConvergeAngleDeg == nil {
		return 0.01 // default
	}
	return *c.ConvergeAngleDeg
}

// GetConvergeAngle returns the convergence angle in radians.
func (c *TuningConfig) GetConvergeAngle() float64 {
	return c.GetConvergeAngleDeg() * math.Pi / 180
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 50 // default
	}
	return *c.MaxIterations
}
