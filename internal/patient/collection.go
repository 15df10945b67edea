package patient

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/timeutil"
)

// Collection is an ordered set of patients.
type Collection struct {
	Patients []*Patient
}

// Failure is a patient directory that could not be loaded.
type Failure struct {
	Dir string
	Err error
}

// BatchReport summarises a LoadCollection run.
type BatchReport struct {
	RunID    uuid.UUID
	Started  time.Time
	Elapsed  time.Duration
	Scanned  int
	Loaded   int
	Failed   int
	Failures []Failure

	Surfaces           int
	SurfaceErrors      int
	UnattachedSurfaces int
	Sessions           int
	SkippedDeltaLogs   int

	// Duplicates lists directories whose patient id was already loaded
	// from an earlier directory. Both patients stay in the collection;
	// ByID and the store keep the first.
	Duplicates []Failure
}

func (r *BatchReport) String() string {
	return fmt.Sprintf("run %s: scanned %d, loaded %d, failed %d; %d captures (%d bad, %d unattached); %d sessions, %d skipped delta logs in %s",
		r.RunID, r.Scanned, r.Loaded, r.Failed, r.Surfaces, r.SurfaceErrors, r.UnattachedSurfaces,
		r.Sessions, r.SkippedDeltaLogs, r.Elapsed.Round(time.Millisecond))
}

// BatchOptions control LoadCollection.
type BatchOptions struct {
	Workers          int
	Clock            timeutil.Clock
	ProgressInterval time.Duration // zero disables progress logging

	// Segment builds every patient's series and calendar inside the
	// worker so delta-log failures are counted in the report.
	Segment bool
}

// ScanRoots returns the patient directories under each root: immediate
// sub-directories holding a manifest, in root then name order.
func ScanRoots(fsys fsutil.FileSystem, roots []string, manifestNames []string) ([]string, error) {
	var dirs []string
	for _, root := range roots {
		entries, err := fsys.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to list PData root %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			if _, ok := FindManifest(fsys, dir, manifestNames); ok {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}

// LoadCollection loads every patient under roots in parallel. A patient
// that fails to load is reported, not returned; the error is non-nil only
// when a root cannot be listed or ctx is cancelled.
func LoadCollection(ctx context.Context, fsys fsutil.FileSystem, roots []string, opts Options, bo BatchOptions) (*Collection, *BatchReport, error) {
	opts = opts.withDefaults()
	if bo.Clock == nil {
		bo.Clock = timeutil.RealClock{}
	}
	if bo.Workers <= 0 {
		bo.Workers = 1
	}

	report := &BatchReport{RunID: uuid.New(), Started: bo.Clock.Now()}
	dirs, err := ScanRoots(fsys, roots, opts.ManifestNames)
	if err != nil {
		return nil, nil, err
	}
	report.Scanned = len(dirs)
	opsf("run %s: %d patient directories under %d roots", report.RunID, len(dirs), len(roots))

	var done atomic.Int64
	if bo.ProgressInterval > 0 {
		ticker := bo.Clock.NewTicker(bo.ProgressInterval)
		defer ticker.Stop()
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			for {
				select {
				case <-ticker.C():
					opsf("processed %d of %d patients", done.Load(), len(dirs))
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	patients := make([]*Patient, len(dirs))
	errs := make([]error, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bo.Workers)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer done.Add(1)
			p, err := Load(fsys, dir, opts)
			if err != nil {
				opsf("failed to load %s: %v", dir, err)
				errs[i] = err
				return nil
			}
			if bo.Segment {
				p.Calendar()
			}
			patients[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	c := &Collection{}
	firstDir := make(map[string]string)
	for i, p := range patients {
		if p == nil {
			report.Failures = append(report.Failures, Failure{Dir: dirs[i], Err: errs[i]})
			continue
		}
		if first, ok := firstDir[p.ID()]; ok {
			opsf("patient %s in %s duplicates %s; the first is kept for lookups and storage", p.ID(), p.Dir, first)
			report.Duplicates = append(report.Duplicates, Failure{Dir: p.Dir, Err: fmt.Errorf("%w: %s also in %s", ErrDuplicatePatient, p.ID(), first)})
		} else {
			firstDir[p.ID()] = p.Dir
		}
		c.Patients = append(c.Patients, p)
		report.Surfaces += len(p.Surfaces)
		report.SurfaceErrors += len(p.SurfaceErrors)
		report.UnattachedSurfaces += len(p.Correlation.Unattached)
		if bo.Segment {
			report.Sessions += len(p.Calendar().Sessions())
			report.SkippedDeltaLogs += len(p.SkippedDeltaLogs())
		}
	}
	report.Loaded = len(c.Patients)
	report.Failed = len(report.Failures)
	report.Elapsed = bo.Clock.Since(report.Started)
	opsf("%s", report)
	return c, report, nil
}

// Filter selects patients for analysis. A patient is kept when its ID
// contains any of PatientIDs or any phase description contains any of
// Phases; with both lists empty every patient is kept. NumericOnly then
// drops patients whose ID is not all digits.
type Filter struct {
	PatientIDs  []string
	Phases      []string
	NumericOnly bool
}

// Filter returns the matching patients, each once, in collection order.
func (c *Collection) Filter(f Filter) *Collection {
	out := &Collection{}
	seen := make(map[*Patient]bool)
	for _, p := range c.Patients {
		if seen[p] || !f.selects(p) {
			continue
		}
		if f.NumericOnly && !isDigits(p.ID()) {
			continue
		}
		seen[p] = true
		out.Patients = append(out.Patients, p)
	}
	return out
}

func (f Filter) selects(p *Patient) bool {
	if len(f.PatientIDs) == 0 && len(f.Phases) == 0 {
		return true
	}
	for _, id := range f.PatientIDs {
		if strings.Contains(p.ID(), id) {
			return true
		}
	}
	for _, ph := range f.Phases {
		if p.HasPhase(ph) {
			return true
		}
	}
	return false
}

// ByID returns the patient with the given ID.
func (c *Collection) ByID(id string) (*Patient, bool) {
	for _, p := range c.Patients {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
