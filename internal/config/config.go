// Package config loads extraction parameters from a JSON file, a .env file
// and DEMSINKS_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/demsinks.defaults.json"

// Config holds the extraction parameters. Every field is optional; the Get*
// methods supply defaults for fields left unset, so partial files are safe.
type Config struct {
	// Extraction params
	MinSize      *int     `json:"min_size,omitempty"`
	MinHeight    *float64 `json:"min_height,omitempty"`
	Interval     *float64 `json:"interval,omitempty"`
	Delta        *float64 `json:"delta,omitempty"` // mount inversion offset above the DEM maximum
	Connectivity *int     `json:"connectivity,omitempty"`

	// Output params
	OutDir    *string `json:"out_dir,omitempty"`
	Writers   *int    `json:"writers,omitempty"`
	Shapefile *bool   `json:"shapefile,omitempty"`
	Previews  *bool   `json:"previews,omitempty"`
	Database  *string `json:"database,omitempty"` // SQLite run catalogue, empty to disable
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		MinSize:      ptrInt(1000),
		MinHeight:    ptrFloat64(0.3),
		Interval:     ptrFloat64(0.3),
		Delta:        ptrFloat64(100),
		Connectivity: ptrInt(8),
		OutDir:       ptrString("."),
		Writers:      ptrInt(4),
		Shapefile:    ptrBool(false),
		Previews:     ptrBool(false),
		Database:     ptrString(""),
	}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
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

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.MinSize != nil && *c.MinSize < 0 {
		return fmt.Errorf("min_size must be non-negative, got %d", *c.MinSize)
	}
	if c.MinHeight != nil && (math.IsNaN(*c.MinHeight) || *c.MinHeight < 0) {
		return fmt.Errorf("min_height must be non-negative, got %f", *c.MinHeight)
	}
	if c.Interval != nil && (math.IsNaN(*c.Interval) || *c.Interval <= 0) {
		return fmt.Errorf("interval must be positive, got %f", *c.Interval)
	}
	if c.Delta != nil && (math.IsNaN(*c.Delta) || math.IsInf(*c.Delta, 0)) {
		return fmt.Errorf("delta must be finite, got %f", *c.Delta)
	}
	if c.Connectivity != nil && *c.Connectivity != 4 && *c.Connectivity != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", *c.Connectivity)
	}
	if c.Writers != nil && *c.Writers < 1 {
		return fmt.Errorf("writers must be at least 1, got %d", *c.Writers)
	}
	return nil
}

// Merge copies every field set in o over c.
func (c *Config) Merge(o *Config) {
	if o == nil {
		return
	}
	if o.MinSize != nil {
		c.MinSize = o.MinSize
	}
	if o.MinHeight != nil {
		c.MinHeight = o.MinHeight
	}
	if o.Interval != nil {
		c.Interval = o.Interval
	}
	if o.Delta != nil {
		c.Delta = o.Delta
	}
	if o.Connectivity != nil {
		c.Connectivity = o.Connectivity
	}
	if o.OutDir != nil {
		c.OutDir = o.OutDir
	}
	if o.Writers != nil {
		c.Writers = o.Writers
	}
	if o.Shapefile != nil {
		c.Shapefile = o.Shapefile
	}
	if o.Previews != nil {
		c.Previews = o.Previews
	}
	if o.Database != nil {
		c.Database = o.Database
	}
}

// GetMinSize returns the min_size value or the default.
func (c *Config) GetMinSize() int {
	if c.MinSize == nil {
		return 1000 // default
	}
	return *c.MinSize
}

// GetMinHeight returns the min_height value or the default.
func (c *Config) GetMinHeight() float64 {
	if c.MinHeight == nil {
		return 0.3 // default
	}
	return *c.MinHeight
}

// GetInterval returns the interval value or the default.
func (c *Config) GetInterval() float64 {
	if c.Interval == nil {
		return 0.3 // default
	}
	return *c.Interval
}

// GetDelta returns the delta value or the default.
func (c *Config) GetDelta() float64 {
	if c.Delta == nil {
		return 100 // default
	}
	return *c.Delta
}

// GetConnectivity returns the connectivity value or the default.
func (c *Config) GetConnectivity() int {
	if c.Connectivity == nil {
		return 8 // default
	}
	return *c.Connectivity
}

// GetOutDir returns the out_dir value or the default.
func (c *Config) GetOutDir() string {
	if c.OutDir == nil || *c.OutDir == "" {
		return "." // default
	}
	return *c.OutDir
}

// GetWriters returns the writers value or the default.
func (c *Config) GetWriters() int {
	if c.Writers == nil {
		return 4 // default
	}
	return *c.Writers
}

// GetShapefile returns the shapefile value or the default.
func (c *Config) GetShapefile() bool {
	if c.Shapefile == nil {
		return false // default
	}
	return *c.Shapefile
}

// GetPreviews returns the previews value or the default.
func (c *Config) GetPreviews() bool {
	if c.Previews == nil {
		return false // default
	}
	return *c.Previews
}

// GetDatabase returns the database path or "" when the catalogue is disabled.
func (c *Config) GetDatabase() string {
	if c.Database == nil {
		return ""
	}
	return *c.Database
}
