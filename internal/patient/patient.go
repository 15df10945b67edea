// Package patient loads patient directories into correlated hierarchies
// and runs the batch over one or more PData roots.
package patient

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/sgrt.report/internal/correlate"
	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/manifest"
	"github.com/banshee-data/sgrt.report/internal/surface"
	"github.com/banshee-data/sgrt.report/internal/timeseries"
	"github.com/banshee-data/sgrt.report/internal/treatment"
)

// ErrNoManifest is returned for a directory without a manifest file.
var ErrNoManifest = errors.New("no patient manifest")

// ErrDuplicatePatient reports a patient id already seen in another directory.
var ErrDuplicatePatient = errors.New("duplicate patient id")

// Patient is a loaded and correlated patient directory.
type Patient struct {
	Dir          string
	ManifestPath string
	Tree         *manifest.Tree
	Surfaces     []*surface.Record
	Correlation  *correlate.Result

	// SurfaceErrors holds the capture directories that failed to decode.
	SurfaceErrors []error

	seriesOnce sync.Once
	series     *timeseries.Series
	skipped    []error

	calendarOnce sync.Once
	calendar     *treatment.Calendar
}

// FindManifest returns the first manifest name present in dir.
func FindManifest(fsys fsutil.FileSystem, dir string, names []string) (string, bool) {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if fsys.Exists(p) {
			return p, true
		}
	}
	return "", false
}

// Load parses the manifest in dir, decodes every capture directory and
// correlates the captures onto the hierarchy. A capture that fails to
// decode is recorded in SurfaceErrors; a bad manifest fails the load.
func Load(fsys fsutil.FileSystem, dir string, opts Options) (*Patient, error) {
	opts = opts.withDefaults()

	path, ok := FindManifest(fsys, dir, opts.ManifestNames)
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoManifest)
	}
	tree, err := manifest.ParseFile(fsys, path, opts.MaxFileBytes, opts.Location)
	if err != nil {
		return nil, err
	}

	p := &Patient{Dir: dir, ManifestPath: path, Tree: tree}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		capDir := filepath.Join(dir, e.Name())
		if !fsys.Exists(filepath.Join(capDir, opts.CaptureMarker)) {
			continue
		}
		r, err := surface.Decode(fsys, capDir, opts.Surface)
		if err != nil {
			opsf("skipping capture: %v", err)
			p.SurfaceErrors = append(p.SurfaceErrors, err)
			continue
		}
		p.Surfaces = append(p.Surfaces, r)
	}

	if p.Correlation, err = correlate.Join(tree, p.Surfaces); err != nil {
		return nil, fmt.Errorf("failed to correlate %s: %w", dir, err)
	}
	diagf("loaded %s: %d captures, %d unattached", p.ID(), len(p.Surfaces), len(p.Correlation.Unattached))
	return p, nil
}

// ID returns the manifest PatientID, falling back to the directory name.
func (p *Patient) ID() string {
	if id, ok := p.Details().String("PatientID"); ok && id != "" {
		return id
	}
	return filepath.Base(p.Dir)
}

// Details returns the patient-level manifest details.
func (p *Patient) Details() manifest.Details {
	return p.Tree.Root().Details()
}

// Series returns the patient's delta-log series, or nil when there are no
// samples. It is computed once.
func (p *Patient) Series() *timeseries.Series {
	p.seriesOnce.Do(func() {
		var a timeseries.Aggregator
		p.series = a.Patient(p.Tree.Root())
		p.skipped = a.Skipped
	})
	return p.series
}

// SkippedDeltaLogs returns the delta logs Series could not decode.
func (p *Patient) SkippedDeltaLogs() []error {
	p.Series()
	return p.skipped
}

// Calendar returns the treatment calendar, or nil when the patient has no
// delta-log samples.
func (p *Patient) Calendar() *treatment.Calendar {
	p.calendarOnce.Do(func() {
		p.calendar = treatment.NewCalendar(p.Series())
	})
	return p.calendar
}

// HasPhase reports whether any phase description contains substr.
func (p *Patient) HasPhase(substr string) bool {
	for _, site := range p.Tree.Root().Sites() {
		for _, phase := range site.Phases() {
			if strings.Contains(phase.Description(), substr) {
				return true
			}
		}
	}
	return false
}
