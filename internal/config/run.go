// Package config loads run parameters for the tiling pipeline from JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical run defaults file.
const DefaultConfigPath = "config/hextile.defaults.json"

// Reprojection modes.
const (
	ReprojectNone        = "none"
	ReprojectWebMercator = "web_mercator"
)

// RunConfig represents the parameters of one tiling run. Every field is
// optional in the JSON file; the Get* methods supply defaults for omitted
// fields, so partial configs are safe.
type RunConfig struct {
	// Grid and trial params
	Size      *float64 `json:"size,omitempty"` // hexagon circumradius in projected units
	NumTrials *int     `json:"num_trials,omitempty"`
	Seed      *uint64  `json:"seed,omitempty"` // omitted: drawn at random and logged
	Workers   *int     `json:"workers,omitempty"`

	// Input / projection params
	Input          *string `json:"input,omitempty"`
	Reproject      *string `json:"reproject,omitempty"`       // "web_mercator" or "none"
	GeometryPolicy *string `json:"geometry_policy,omitempty"` // "drop" or "strict"

	// Output params
	OutputDir    *string `json:"output_dir,omitempty"`
	OutputPrefix *string `json:"output_prefix,omitempty"`
	OutputWGS84  *bool   `json:"output_wgs84,omitempty"`
	Plot         *bool   `json:"plot,omitempty"`
	Chart        *bool   `json:"chart,omitempty"`
	DBPath       *string `json:"db_path,omitempty"` // empty: no run history
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyRunConfig returns a RunConfig with all fields set to nil.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadRunConfig(path string) (*RunConfig, error) {
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

	cfg := EmptyRunConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadLayered builds the effective configuration for a run: the defaults
// file at defaultsPath, then the config file at path on top. A missing
// defaults file falls back to the built-in Get* defaults; an empty path
// skips the config file.
func LoadLayered(defaultsPath, path string) (*RunConfig, error) {
	cfg := EmptyRunConfig()
	if defaultsPath != "" {
		if _, err := os.Stat(defaultsPath); err == nil {
			defaults, err := LoadRunConfig(defaultsPath)
			if err != nil {
				return nil, fmt.Errorf("defaults %s: %w", defaultsPath, err)
			}
			cfg = defaults
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat defaults file: %w", err)
		}
	}
	if path != "" {
		fileCfg, err := LoadRunConfig(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical run defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RunConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRunConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Size != nil {
		if !(*c.Size > 0) || math.IsInf(*c.Size, 0) {
			return fmt.Errorf("size must be positive and finite, got %v", *c.Size)
		}
	}

	if c.NumTrials != nil && *c.NumTrials < 1 {
		return fmt.Errorf("num_trials must be at least 1, got %d", *c.NumTrials)
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	if c.Reproject != nil {
		switch *c.Reproject {
		case ReprojectNone, ReprojectWebMercator:
		default:
			return fmt.Errorf("reproject must be %q or %q, got %q", ReprojectNone, ReprojectWebMercator, *c.Reproject)
		}
	}

	if c.GeometryPolicy != nil {
		switch strings.ToLower(*c.GeometryPolicy) {
		case "drop", "strict":
		default:
			return fmt.Errorf("geometry_policy must be \"drop\" or \"strict\", got %q", *c.GeometryPolicy)
		}
	}

	if c.OutputPrefix != nil && strings.ContainsAny(*c.OutputPrefix, `/\`) {
		return fmt.Errorf("output_prefix must not contain path separators, got %q", *c.OutputPrefix)
	}

	return nil
}

// Merge copies every non-nil field of other over c. Later sources
// (command-line flags) override earlier ones (the config file).
func (c *RunConfig) Merge(other *RunConfig) {
	if other == nil {
		return
	}
	if other.Size != nil {
		c.Size = other.Size
	}
	if other.NumTrials != nil {
		c.NumTrials = other.NumTrials
	}
	if other.Seed != nil {
		c.Seed = other.Seed
	}
	if other.Workers != nil {
		c.Workers = other.Workers
	}
	if other.Input != nil {
		c.Input = other.Input
	}
	if other.Reproject != nil {
		c.Reproject = other.Reproject
	}
	if other.GeometryPolicy != nil {
		c.GeometryPolicy = other.GeometryPolicy
	}
	if other.OutputDir != nil {
		c.OutputDir = other.OutputDir
	}
	if other.OutputPrefix != nil {
		c.OutputPrefix = other.OutputPrefix
	}
	if other.OutputWGS84 != nil {
		c.OutputWGS84 = other.OutputWGS84
	}
	if other.Plot != nil {
		c.Plot = other.Plot
	}
	if other.Chart != nil {
		c.Chart = other.Chart
	}
	if other.DBPath != nil {
		c.DBPath = other.DBPath
	}
}

// GetSize returns the hexagon circumradius or the default.
func (c *RunConfig) GetSize() float64 {
	if c.Size == nil {
		return 5000 // metres in Web Mercator
	}
	return *c.Size
}

// GetNumTrials returns the num_trials value or the default.
func (c *RunConfig) GetNumTrials() int {
	if c.NumTrials == nil {
		return 5
	}
	return *c.NumTrials
}

// GetSeed returns the seed and whether one was configured.
func (c *RunConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetWorkers returns the workers value or the default.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetInput returns the input path or "".
func (c *RunConfig) GetInput() string {
	if c.Input == nil {
		return ""
	}
	return *c.Input
}

// GetReproject returns the reprojection mode or the default.
func (c *RunConfig) GetReproject() string {
	if c.Reproject == nil {
		return ReprojectWebMercator
	}
	return *c.Reproject
}

// GetGeometryPolicy returns the geometry_policy value or the default.
func (c *RunConfig) GetGeometryPolicy() string {
	if c.GeometryPolicy == nil {
		return "drop"
	}
	return *c.GeometryPolicy
}

// GetOutputDir returns the output_dir value or the default.
func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return "assigned_grids_hex"
	}
	return *c.OutputDir
}

// GetOutputPrefix returns the output_prefix value or the default.
func (c *RunConfig) GetOutputPrefix() string {
	if c.OutputPrefix == nil {
		return "assigned_grid"
	}
	return *c.OutputPrefix
}

// GetOutputWGS84 returns the output_wgs84 value or the default.
func (c *RunConfig) GetOutputWGS84() bool {
	if c.OutputWGS84 == nil {
		return false
	}
	return *c.OutputWGS84
}

// GetPlot returns the plot value or the default.
func (c *RunConfig) GetPlot() bool {
	if c.Plot == nil {
		return false
	}
	return *c.Plot
}

// GetChart returns the chart value or the default.
func (c *RunConfig) GetChart() bool {
	if c.Chart == nil {
		return false
	}
	return *c.Chart
}

// GetDBPath returns the db_path value or "" when run history is disabled.
func (c *RunConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}
