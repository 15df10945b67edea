package patient

import (
	"time"

	"github.com/banshee-data/sgrt.report/internal/config"
	"github.com/banshee-data/sgrt.report/internal/deltalog"
	"github.com/banshee-data/sgrt.report/internal/surface"
	"github.com/banshee-data/sgrt.report/internal/units"
)

// Options control loading of a patient directory.
type Options struct {
	Location      *time.Location
	MaxFileBytes  int64
	ManifestNames []string
	CaptureMarker string // file whose presence marks a capture directory
	Surface       surface.Options
}

// OptionsFromConfig resolves the ingest configuration into loader options.
func OptionsFromConfig(cfg *config.IngestConfig) (Options, error) {
	loc, err := units.LoadLocation(cfg.GetTimezone())
	if err != nil {
		return Options{}, err
	}
	return Options{
		Location:      loc,
		MaxFileBytes:  cfg.GetMaxFileBytes(),
		ManifestNames: cfg.GetManifestNames(),
		CaptureMarker: cfg.GetCaptureMarker(),
		Surface: surface.Options{
			Location:      loc,
			MaxFileBytes:  cfg.GetMaxFileBytes(),
			TransformFile: cfg.GetTransformFile(),
			LabelKey:      cfg.GetCaptureLabelKey(),
			DeltaLog: deltalog.Options{
				Location:              loc,
				HeaderLines:           cfg.GetDeltaHeaderLines(),
				LostTrackingMagnitude: cfg.GetLostTrackingMagnitude(),
			},
		},
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if len(o.ManifestNames) == 0 {
		o.ManifestNames = config.DefaultManifestNames
	}
	if o.CaptureMarker == "" {
		o.CaptureMarker = config.DefaultCaptureMarker
	}
	if o.Surface.Location == nil {
		o.Surface.Location = o.Location
	}
	if o.Surface.MaxFileBytes == 0 {
		o.Surface.MaxFileBytes = o.MaxFileBytes
	}
	return o
}
