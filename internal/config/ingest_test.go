package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyIngestConfig_Getters(t *testing.T) {
	cfg := EmptyIngestConfig()

	if cfg.GetTimezone() != "UTC" {
		t.Errorf("GetTimezone() = %q, want UTC", cfg.GetTimezone())
	}
	if cfg.GetDeltaHeaderLines() != 11 {
		t.Errorf("GetDeltaHeaderLines() = %d, want 11", cfg.GetDeltaHeaderLines())
	}
	if cfg.GetLostTrackingMagnitude() != 999 {
		t.Errorf("GetLostTrackingMagnitude() = %f, want 999", cfg.GetLostTrackingMagnitude())
	}
	if cfg.GetTransformFile() != "VRTToIsoTransformation.tfm" {
		t.Errorf("GetTransformFile() = %q", cfg.GetTransformFile())
	}
	if cfg.GetCaptureMarker() != "capture.obj" {
		t.Errorf("GetCaptureMarker() = %q", cfg.GetCaptureMarker())
	}
	if cfg.GetWorkers() != 4 {
		t.Errorf("GetWorkers() = %d, want 4", cfg.GetWorkers())
	}
	if cfg.GetRollingWindow() != 20 {
		t.Errorf("GetRollingWindow() = %d, want 20", cfg.GetRollingWindow())
	}
	if diff := cmp.Diff(DefaultManifestNames, cfg.GetManifestNames()); diff != "" {
		t.Errorf("GetManifestNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultIngestConfig_MatchesDefaultsFile(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultIngestConfig(), fromFile); diff != "" {
		t.Errorf("defaults file drifted from DefaultIngestConfig (-code +file):\n%s", diff)
	}
}

func TestLoadIngestConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.json")

	testJSON := `{
  "timezone": "America/Chicago",
  "delta_header_lines": 12,
  "workers": 2
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadIngestConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetTimezone() != "America/Chicago" {
		t.Errorf("GetTimezone() = %q", cfg.GetTimezone())
	}
	if cfg.GetDeltaHeaderLines() != 12 {
		t.Errorf("GetDeltaHeaderLines() = %d", cfg.GetDeltaHeaderLines())
	}
	if cfg.GetWorkers() != 2 {
		t.Errorf("GetWorkers() = %d", cfg.GetWorkers())
	}
	// Omitted fields keep defaults
	if cfg.GetRollingWindow() != DefaultRollingWindow {
		t.Errorf("GetRollingWindow() = %d", cfg.GetRollingWindow())
	}
}

func TestLoadIngestConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{`, "failed to parse"},
		{"bad timezone", "tz.json", `{"timezone":"Mars/Olympus"}`, "invalid timezone"},
		{"zero workers", "w.json", `{"workers":0}`, "workers must be"},
		{"negative header", "h.json", `{"delta_header_lines":-1}`, "delta_header_lines"},
		{"path manifest", "m.json", `{"manifest_names":["a/b.vpax"]}`, "plain filenames"},
		{"sentinel", "s.json", `{"lost_tracking_magnitude":0}`, "lost_tracking_magnitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadIngestConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadIngestConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
