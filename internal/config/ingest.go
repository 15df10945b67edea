package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/sgrt.report/internal/units"
)

// DefaultConfigPath is the path to the canonical ingest defaults file.
const DefaultConfigPath = "config/ingest.defaults.json"

// Built-in defaults used by the Get* accessors when a field is omitted.
const (
	DefaultDeltaHeaderLines      = 11
	DefaultLostTrackingMagnitude = 999.0
	DefaultMaxFileBytes          = 256 * 1024 * 1024
	DefaultWorkers               = 4
	DefaultTransformFile         = "VRTToIsoTransformation.tfm"
	DefaultCaptureMarker         = "capture.obj"
	DefaultCaptureLabelKey       = "Label"
	DefaultRollingWindow         = 20
)

// DefaultManifestNames lists the manifest filenames searched for in a
// patient directory, in order.
var DefaultManifestNames = []string{"Patient Details.vpax", "Patient_Details.vpax"}

// IngestConfig represents the root configuration for the ingest pipeline.
// Every field is optional; omitted fields fall back to the built-in defaults.
type IngestConfig struct {
	// Timezone used to interpret the naive timestamps written by the device.
	Timezone *string `json:"timezone,omitempty"`

	// Delta-log layout
	DeltaHeaderLines      *int     `json:"delta_header_lines,omitempty"`
	LostTrackingMagnitude *float64 `json:"lost_tracking_magnitude,omitempty"`

	// File handling
	MaxFileBytes    *int64   `json:"max_file_bytes,omitempty"`
	TransformFile   *string  `json:"transform_file,omitempty"`
	CaptureMarker   *string  `json:"capture_marker,omitempty"`
	CaptureLabelKey *string  `json:"capture_label_key,omitempty"`
	ManifestNames   []string `json:"manifest_names,omitempty"`

	// Batch driver
	Workers *int `json:"workers,omitempty"`

	// Reporting
	RollingWindow *int `json:"rolling_window,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyIngestConfig returns an IngestConfig with all fields set to nil.
func EmptyIngestConfig() *IngestConfig {
	return &IngestConfig{}
}

// DefaultIngestConfig returns an IngestConfig with every field populated
// from the built-in defaults.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Timezone:              ptrString(units.DefaultTimezone),
		DeltaHeaderLines:      ptrInt(DefaultDeltaHeaderLines),
		LostTrackingMagnitude: ptrFloat64(DefaultLostTrackingMagnitude),
		MaxFileBytes:          ptrInt64(DefaultMaxFileBytes),
		TransformFile:         ptrString(DefaultTransformFile),
		CaptureMarker:         ptrString(DefaultCaptureMarker),
		CaptureLabelKey:       ptrString(DefaultCaptureLabelKey),
		ManifestNames:         append([]string(nil), DefaultManifestNames...),
		Workers:               ptrInt(DefaultWorkers),
		RollingWindow:         ptrInt(DefaultRollingWindow),
	}
}

// LoadIngestConfig loads an IngestConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults through the Get* accessors.
func LoadIngestConfig(path string) (*IngestConfig, error) {
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

	cfg := EmptyIngestConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Intended for test setup.
func MustLoadDefaultConfig() *IngestConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadIngestConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *IngestConfig) Validate() error {
	if c.Timezone != nil && *c.Timezone != "" && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}
	if c.DeltaHeaderLines != nil && *c.DeltaHeaderLines < 0 {
		return fmt.Errorf("delta_header_lines must be non-negative, got %d", *c.DeltaHeaderLines)
	}
	if c.LostTrackingMagnitude != nil && *c.LostTrackingMagnitude <= 0 {
		return fmt.Errorf("lost_tracking_magnitude must be positive, got %f", *c.LostTrackingMagnitude)
	}
	if c.MaxFileBytes != nil && *c.MaxFileBytes < 0 {
		return fmt.Errorf("max_file_bytes must be non-negative, got %d", *c.MaxFileBytes)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.RollingWindow != nil && *c.RollingWindow < 1 {
		return fmt.Errorf("rolling_window must be at least 1, got %d", *c.RollingWindow)
	}
	for _, name := range c.ManifestNames {
		if name == "" || filepath.Base(name) != name {
			return fmt.Errorf("manifest_names entries must be plain filenames, got %q", name)
		}
	}
	return nil
}

// GetTimezone returns the timezone value or the default.
func (c *IngestConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return units.DefaultTimezone
	}
	return *c.Timezone
}

// GetDeltaHeaderLines returns the delta_header_lines value or the default.
func (c *IngestConfig) GetDeltaHeaderLines() int {
	if c.DeltaHeaderLines == nil {
		return DefaultDeltaHeaderLines
	}
	return *c.DeltaHeaderLines
}

// GetLostTrackingMagnitude returns the lost_tracking_magnitude value or the default.
func (c *IngestConfig) GetLostTrackingMagnitude() float64 {
	if c.LostTrackingMagnitude == nil {
		return DefaultLostTrackingMagnitude
	}
	return *c.LostTrackingMagnitude
}

// GetMaxFileBytes returns the max_file_bytes value or the default.
func (c *IngestConfig) GetMaxFileBytes() int64 {
	if c.MaxFileBytes == nil {
		return DefaultMaxFileBytes
	}
	return *c.MaxFileBytes
}

// GetTransformFile returns the transform_file value or the default.
func (c *IngestConfig) GetTransformFile() string {
	if c.TransformFile == nil || *c.TransformFile == "" {
		return DefaultTransformFile
	}
	return *c.TransformFile
}

// GetCaptureMarker returns the capture_marker value or the default.
func (c *IngestConfig) GetCaptureMarker() string {
	if c.CaptureMarker == nil || *c.CaptureMarker == "" {
		return DefaultCaptureMarker
	}
	return *c.CaptureMarker
}

// GetCaptureLabelKey returns the capture_label_key value or the default.
func (c *IngestConfig) GetCaptureLabelKey() string {
	if c.CaptureLabelKey == nil || *c.CaptureLabelKey == "" {
		return DefaultCaptureLabelKey
	}
	return *c.CaptureLabelKey
}

// GetManifestNames returns the manifest_names value or the default.
func (c *IngestConfig) GetManifestNames() []string {
	if len(c.ManifestNames) == 0 {
		return DefaultManifestNames
	}
	return c.ManifestNames
}

// GetWorkers returns the workers value or the default.
func (c *IngestConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetRollingWindow returns the rolling_window value or the default.
func (c *IngestConfig) GetRollingWindow() int {
	if c.RollingWindow == nil {
		return DefaultRollingWindow
	}
	return *c.RollingWindow
}
