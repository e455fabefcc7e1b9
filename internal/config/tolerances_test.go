package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultToleranceConfig(t *testing.T) {
	cfg := DefaultToleranceConfig()

	if cfg.MaxRadiusDiff == nil || *cfg.MaxRadiusDiff != 2 {
		t.Errorf("Expected MaxRadiusDiff 2, got %v", cfg.MaxRadiusDiff)
	}
	if cfg.MinFrameGap == nil || *cfg.MinFrameGap != 5 {
		t.Errorf("Expected MinFrameGap 5, got %v", cfg.MinFrameGap)
	}
	if cfg.PruneTriples == nil || *cfg.PruneTriples != true {
		t.Errorf("Expected PruneTriples true, got %v", cfg.PruneTriples)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyToleranceConfig()

	if got := cfg.GetMaxRadiusDiff(); got != 2 {
		t.Errorf("GetMaxRadiusDiff() = %d, want 2", got)
	}
	if got := cfg.GetMaxVelocityDeviation(); got != 2.0 {
		t.Errorf("GetMaxVelocityDeviation() = %f, want 2.0", got)
	}
	if got := cfg.GetMinFrameGap(); got != 5 {
		t.Errorf("GetMinFrameGap() = %d, want 5", got)
	}
	if got := cfg.GetMinDetections(); got != 3 {
		t.Errorf("GetMinDetections() = %d, want 3", got)
	}
	if got := cfg.GetMaxPositionalDeviation(); got != 2 {
		t.Errorf("GetMaxPositionalDeviation() = %f, want 2", got)
	}
	if got := cfg.GetVelocityStability(); got != StabilityAdjacent {
		t.Errorf("GetVelocityStability() = %q, want %q", got, StabilityAdjacent)
	}
	if cfg.GetRequireDescent() {
		t.Error("GetRequireDescent() = true, want false")
	}
	if got := cfg.GetMaxTripleDetections(); got != 2000 {
		t.Errorf("GetMaxTripleDetections() = %d, want 2000", got)
	}
	if !cfg.GetPruneTriples() {
		t.Error("GetPruneTriples() = false, want true")
	}
	if got := cfg.GetFallThreshold(); got != 1 {
		t.Errorf("GetFallThreshold() = %d, want 1", got)
	}
}

func TestLoadToleranceConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tolerances.json")

	testJSON := `{
  "max_radius_diff": 4,
  "max_velocity_deviation": 1.5,
  "velocity_stability": "first"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadToleranceConfig(configPath)
	if err != nil {
		t.Fatalf("LoadToleranceConfig failed: %v", err)
	}

	if cfg.GetMaxRadiusDiff() != 4 {
		t.Errorf("Expected max_radius_diff 4, got %d", cfg.GetMaxRadiusDiff())
	}
	if cfg.GetMaxVelocityDeviation() != 1.5 {
		t.Errorf("Expected max_velocity_deviation 1.5, got %f", cfg.GetMaxVelocityDeviation())
	}
	if cfg.GetVelocityStability() != StabilityFirst {
		t.Errorf("Expected velocity_stability first, got %s", cfg.GetVelocityStability())
	}
	// Omitted fields fall back to defaults
	if cfg.GetMinFrameGap() != 5 {
		t.Errorf("Expected default min_frame_gap 5, got %d", cfg.GetMinFrameGap())
	}
}

func TestLoadToleranceConfig_DefaultsFile(t *testing.T) {
	cfg, err := LoadToleranceConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("failed to load %s: %v", DefaultConfigPath, err)
	}
	want := DefaultToleranceConfig()
	if cfg.GetMaxRadiusDiff() != want.GetMaxRadiusDiff() ||
		cfg.GetMaxVelocityDeviation() != want.GetMaxVelocityDeviation() ||
		cfg.GetMinFrameGap() != want.GetMinFrameGap() ||
		cfg.GetMinDetections() != want.GetMinDetections() ||
		cfg.GetMaxPositionalDeviation() != want.GetMaxPositionalDeviation() ||
		cfg.GetMaxTripleDetections() != want.GetMaxTripleDetections() {
		t.Errorf("defaults file drifted from DefaultToleranceConfig: %+v", cfg)
	}
}

func TestLoadToleranceConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", "{}", ".json extension"},
		{"bad json", "bad.json", "{not json", "failed to parse"},
		{"negative radius", "neg.json", `{"max_radius_diff": -1}`, "max_radius_diff"},
		{"bad stability", "mode.json", `{"velocity_stability": "loose"}`, "velocity_stability"},
		{"zero min detections", "min.json", `{"min_detections": 0}`, "min_detections"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadToleranceConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadToleranceConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestMerge(t *testing.T) {
	base := DefaultToleranceConfig()
	override := &ToleranceConfig{
		MinFrameGap:  ptrInt(3),
		PruneTriples: ptrBool(false),
	}
	base.Merge(override)

	if base.GetMinFrameGap() != 3 {
		t.Errorf("MinFrameGap = %d, want 3", base.GetMinFrameGap())
	}
	if base.GetPruneTriples() {
		t.Error("PruneTriples should be overridden to false")
	}
	if base.GetMaxRadiusDiff() != 2 {
		t.Errorf("MaxRadiusDiff = %d, want untouched 2", base.GetMaxRadiusDiff())
	}

	base.Merge(nil)
	if base.GetMinFrameGap() != 3 {
		t.Error("Merge(nil) must be a no-op")
	}
}

func TestValidate_FloatTolerances(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ToleranceConfig, v float64)
		value   float64
		wantErr string
	}{
		{"velocity NaN", func(c *ToleranceConfig, v float64) { c.MaxVelocityDeviation = &v }, math.NaN(), "max_velocity_deviation"},
		{"velocity +Inf", func(c *ToleranceConfig, v float64) { c.MaxVelocityDeviation = &v }, math.Inf(1), "max_velocity_deviation"},
		{"velocity negative", func(c *ToleranceConfig, v float64) { c.MaxVelocityDeviation = &v }, -0.5, "max_velocity_deviation"},
		{"positional NaN", func(c *ToleranceConfig, v float64) { c.MaxPositionalDeviation = &v }, math.NaN(), "max_positional_deviation"},
		{"positional -Inf", func(c *ToleranceConfig, v float64) { c.MaxPositionalDeviation = &v }, math.Inf(-1), "max_positional_deviation"},
		{"velocity zero", func(c *ToleranceConfig, v float64) { c.MaxVelocityDeviation = &v }, 0, ""},
		{"positional fractional", func(c *ToleranceConfig, v float64) { c.MaxPositionalDeviation = &v }, 1.5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultToleranceConfig()
			tt.mutate(cfg, tt.value)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
