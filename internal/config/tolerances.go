package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tolerance defaults file.
// The Get* accessors carry the same values so a missing file is never fatal.
const DefaultConfigPath = "config/tolerances.defaults.json"

// Velocity stability modes.
const (
	StabilityAdjacent = "adjacent" // each velocity sample vs the one before it
	StabilityFirst    = "first"    // each velocity sample vs the first sample
)

// ToleranceConfig holds the numeric thresholds used to accept or reject
// candidate fragments and trajectories. Every field is optional; nil means
// "use the default".
type ToleranceConfig struct {
	MaxRadiusDiff          *int     `json:"max_radius_diff,omitempty"`
	MaxVelocityDeviation   *float64 `json:"max_velocity_deviation,omitempty"`
	MinFrameGap            *int     `json:"min_frame_gap,omitempty"`
	MinDetections          *int     `json:"min_detections,omitempty"`
	MaxPositionalDeviation *float64 `json:"max_positional_deviation,omitempty"`

	// Validator behaviour
	VelocityStability *string `json:"velocity_stability,omitempty"` // "adjacent" or "first"
	RequireDescent    *bool   `json:"require_descent,omitempty"`

	// Triple search bounds
	MaxTripleDetections *int  `json:"max_triple_detections,omitempty"` // 0 = unbounded
	PruneTriples        *bool `json:"prune_triples,omitempty"`

	// Live fall session
	FallThreshold *int `json:"fall_threshold,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyToleranceConfig returns a ToleranceConfig with all fields nil.
func EmptyToleranceConfig() *ToleranceConfig {
	return &ToleranceConfig{}
}

// DefaultToleranceConfig returns a config with every field populated with its default.
func DefaultToleranceConfig() *ToleranceConfig {
	return &ToleranceConfig{
		MaxRadiusDiff:          ptrInt(2),
		MaxVelocityDeviation:   ptrFloat64(2.0),
		MinFrameGap:            ptrInt(5),
		MinDetections:          ptrInt(3),
		MaxPositionalDeviation: ptrFloat64(2),
		VelocityStability:      ptrString(StabilityAdjacent),
		RequireDescent:         ptrBool(false),
		MaxTripleDetections:    ptrInt(2000),
		PruneTriples:           ptrBool(true),
		FallThreshold:          ptrInt(1),
	}
}

// LoadToleranceConfig loads a ToleranceConfig from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are safe.
func LoadToleranceConfig(path string) (*ToleranceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyToleranceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Merge copies every non-nil field of other over c. Used to layer CLI
// overrides on top of a loaded file.
func (c *ToleranceConfig) Merge(other *ToleranceConfig) {
	if other == nil {
		return
	}
	if other.MaxRadiusDiff != nil {
		c.MaxRadiusDiff = other.MaxRadiusDiff
	}
	if other.MaxVelocityDeviation != nil {
		c.MaxVelocityDeviation = other.MaxVelocityDeviation
	}
	if other.MinFrameGap != nil {
		c.MinFrameGap = other.MinFrameGap
	}
	if other.MinDetections != nil {
		c.MinDetections = other.MinDetections
	}
	if other.MaxPositionalDeviation != nil {
		c.MaxPositionalDeviation = other.MaxPositionalDeviation
	}
	if other.VelocityStability != nil {
		c.VelocityStability = other.VelocityStability
	}
	if other.RequireDescent != nil {
		c.RequireDescent = other.RequireDescent
	}
	if other.MaxTripleDetections != nil {
		c.MaxTripleDetections = other.MaxTripleDetections
	}
	if other.PruneTriples != nil {
		c.PruneTriples = other.PruneTriples
	}
	if other.FallThreshold != nil {
		c.FallThreshold = other.FallThreshold
	}
}

func isNonNegativeFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Validate checks that the configuration values are valid.
func (c *ToleranceConfig) Validate() error {
	if c.MaxRadiusDiff != nil && *c.MaxRadiusDiff < 0 {
		return fmt.Errorf("max_radius_diff must be non-negative, got %d", *c.MaxRadiusDiff)
	}
	if c.MaxVelocityDeviation != nil && !isNonNegativeFinite(*c.MaxVelocityDeviation) {
		return fmt.Errorf("max_velocity_deviation must be a finite non-negative number, got %v", *c.MaxVelocityDeviation)
	}
	if c.MinFrameGap != nil && *c.MinFrameGap < 0 {
		return fmt.Errorf("min_frame_gap must be non-negative, got %d", *c.MinFrameGap)
	}
	if c.MinDetections != nil && *c.MinDetections < 1 {
		return fmt.Errorf("min_detections must be at least 1, got %d", *c.MinDetections)
	}
	if c.MaxPositionalDeviation != nil && !isNonNegativeFinite(*c.MaxPositionalDeviation) {
		return fmt.Errorf("max_positional_deviation must be a finite non-negative number, got %v", *c.MaxPositionalDeviation)
	}
	if c.VelocityStability != nil {
		switch *c.VelocityStability {
		case StabilityAdjacent, StabilityFirst:
		default:
			return fmt.Errorf("velocity_stability must be %q or %q, got %q", StabilityAdjacent, StabilityFirst, *c.VelocityStability)
		}
	}
	if c.MaxTripleDetections != nil && *c.MaxTripleDetections < 0 {
		return fmt.Errorf("max_triple_detections must be non-negative, got %d", *c.MaxTripleDetections)
	}
	if c.FallThreshold != nil && *c.FallThreshold < 0 {
		return fmt.Errorf("fall_threshold must be non-negative, got %d", *c.FallThreshold)
	}
	return nil
}

// GetMaxRadiusDiff returns the max_radius_diff value or the default.
func (c *ToleranceConfig) GetMaxRadiusDiff() int {
	if c.MaxRadiusDiff == nil {
		return 2
	}
	return *c.MaxRadiusDiff
}

// GetMaxVelocityDeviation returns the max_velocity_deviation value or the default.
func (c *ToleranceConfig) GetMaxVelocityDeviation() float64 {
	if c.MaxVelocityDeviation == nil {
		return 2.0
	}
	return *c.MaxVelocityDeviation
}

// GetMinFrameGap returns the min_frame_gap value or the default.
func (c *ToleranceConfig) GetMinFrameGap() int {
	if c.MinFrameGap == nil {
		return 5
	}
	return *c.MinFrameGap
}

// GetMinDetections returns the min_detections value or the default.
func (c *ToleranceConfig) GetMinDetections() int {
	if c.MinDetections == nil {
		return 3
	}
	return *c.MinDetections
}

// GetMaxPositionalDeviation returns the max_positional_deviation value or the default.
func (c *ToleranceConfig) GetMaxPositionalDeviation() float64 {
	if c.MaxPositionalDeviation == nil {
		return 2
	}
	return *c.MaxPositionalDeviation
}

// GetVelocityStability returns the velocity_stability mode or the default.
func (c *ToleranceConfig) GetVelocityStability() string {
	if c.VelocityStability == nil || *c.VelocityStability == "" {
		return StabilityAdjacent
	}
	return *c.VelocityStability
}

// GetRequireDescent returns the require_descent value or the default.
func (c *ToleranceConfig) GetRequireDescent() bool {
	if c.RequireDescent == nil {
		return false
	}
	return *c.RequireDescent
}

// GetMaxTripleDetections returns the max_triple_detections value or the default.
func (c *ToleranceConfig) GetMaxTripleDetections() int {
	if c.MaxTripleDetections == nil {
		return 2000
	}
	return *c.MaxTripleDetections
}

// GetPruneTriples returns the prune_triples value or the default.
func (c *ToleranceConfig) GetPruneTriples() bool {
	if c.PruneTriples == nil {
		return true
	}
	return *c.PruneTriples
}

// GetFallThreshold returns the fall_threshold value or the default.
func (c *ToleranceConfig) GetFallThreshold() int {
	if c.FallThreshold == nil {
		return 1
	}
	return *c.FallThreshold
}
