// Package surface decodes one capture directory: its capture.ini and
// site.ini metadata, the monitoring sessions recorded under it, and
// lazily its mesh and delta logs.
package surface

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/sgrt.report/internal/deltalog"
	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/mesh"
)

// File names and keys inside a capture directory.
const (
	CaptureINI = "capture.ini"
	SiteINI    = "site.ini"
	MeshFile   = "capture.obj"

	KeyTreatmentSite = "Treatment Site"
	KeyPhase         = "Phase"
	KeyField         = "Field"

	DetailCreationTime = "Creation Time"
	DetailDisplayName  = "Display Name"

	// DirTimeLayout is the layout of a capture directory basename.
	DirTimeLayout = "060102 150405"

	monitoringPrefix = "Monitoring_"
	deltaLogPrefix   = "RealTimeDeltas_"
)

// Options control how a capture is decoded.
type Options struct {
	Location      *time.Location
	MaxFileBytes  int64
	TransformFile string
	LabelKey      string // capture.ini key used in the display name
	DeltaLog      deltalog.Options
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.TransformFile == "" {
		o.TransformFile = "VRTToIsoTransformation.tfm"
	}
	if o.LabelKey == "" {
		o.LabelKey = "Label"
	}
	if o.DeltaLog.Location == nil {
		o.DeltaLog.Location = o.Location
	}
	return o
}

// Keys is the (site, phase, field) description triple that locates the
// Field a capture belongs to.
type Keys struct {
	Site  string
	Phase string
	Field string
}

func (k Keys) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Site, k.Phase, k.Field)
}

// Record is a decoded capture directory. Mesh and DeltaLogs are decoded on
// first use and cached.
type Record struct {
	Dir         string
	Capture     map[string]string
	Site        map[string]string
	CreatedAt   time.Time // zero when the directory name is not a timestamp
	DisplayName string
	Monitoring  []string // monitoring session ids, sorted
	Warnings    []string

	fsys fsutil.FileSystem
	opts Options
	mesh memo[*mesh.Mesh]
	logs memo[[]*deltalog.Log]
}

// Decode reads the capture at dir. Both ini files must be present.
func Decode(fsys fsutil.FileSystem, dir string, opts Options) (*Record, error) {
	opts = opts.withDefaults()
	r := &Record{Dir: dir, fsys: fsys, opts: opts}

	var err error
	if r.Capture, err = r.readINI(CaptureINI); err != nil {
		return nil, err
	}
	if r.Site, err = r.readINI(SiteINI); err != nil {
		return nil, err
	}
	for _, k := range []string{KeyPhase, KeyField} {
		if v, ok := r.Site[k]; ok {
			r.Site[k] = Unquote(v)
		}
	}

	base := filepath.Base(dir)
	if t, err := time.ParseInLocation(DirTimeLayout, base, opts.Location); err == nil {
		r.CreatedAt = t
	} else {
		opsf("%s: directory name %q is not a capture timestamp", dir, base)
	}
	r.DisplayName = r.displayName()

	if r.Monitoring, err = discoverMonitoring(fsys, dir); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	tracef("decoded capture %s (%d monitoring sessions)", dir, len(r.Monitoring))
	return r, nil
}

func (r *Record) readINI(name string) (map[string]string, error) {
	path := filepath.Join(r.Dir, name)
	data, err := fsutil.ReadFileMax(r.fsys, path, r.opts.MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	values, warnings := ParseINI(data)
	for _, w := range warnings {
		opsf("%s: %s", path, w)
		r.Warnings = append(r.Warnings, name+": "+w)
	}
	return values, nil
}

func (r *Record) displayName() string {
	var parts []string
	if f := r.Site[KeyField]; f != "" {
		parts = append(parts, f)
	}
	if l := r.Capture[r.opts.LabelKey]; l != "" {
		parts = append(parts, l)
	}
	if !r.CreatedAt.IsZero() {
		parts = append(parts, r.CreatedAt.Format(time.DateTime))
	}
	return strings.Join(parts, " - ")
}

func discoverMonitoring(fsys fsutil.FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), monitoringPrefix) {
			ids = append(ids, strings.TrimPrefix(e.Name(), monitoringPrefix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Keys returns the correlation triple. ok is false when any part is
// missing from site.ini.
func (r *Record) Keys() (k Keys, ok bool) {
	k = Keys{Site: r.Site[KeyTreatmentSite], Phase: r.Site[KeyPhase], Field: r.Site[KeyField]}
	return k, k.Site != "" && k.Phase != "" && k.Field != ""
}

// Details returns the capture metadata plus the derived creation time and
// display name.
func (r *Record) Details() map[string]any {
	d := make(map[string]any, len(r.Capture)+2)
	for k, v := range r.Capture {
		d[k] = v
	}
	if !r.CreatedAt.IsZero() {
		d[DetailCreationTime] = r.CreatedAt
	}
	d[DetailDisplayName] = r.DisplayName
	return d
}

// DeltaLogPath returns the delta log path for a monitoring session id.
func (r *Record) DeltaLogPath(id string) string {
	return filepath.Join(r.Dir, monitoringPrefix+id, deltaLogPrefix+id+".txt")
}

// Mesh decodes the capture geometry and applies its transform.
func (r *Record) Mesh() (*mesh.Mesh, error) {
	return r.mesh.get(func() (*mesh.Mesh, error) {
		return mesh.DecodeFiles(r.fsys,
			filepath.Join(r.Dir, MeshFile),
			filepath.Join(r.Dir, r.opts.TransformFile),
			r.opts.MaxFileBytes)
	})
}

// DeltaLogs decodes the delta log of every monitoring session. Sessions
// without a delta log file are ignored. Files that fail to decode are
// skipped; the returned error joins their failures and is non-nil even
// when some logs were decoded.
func (r *Record) DeltaLogs() ([]*deltalog.Log, error) {
	return r.logs.get(func() ([]*deltalog.Log, error) {
		var logs []*deltalog.Log
		var errs []error
		for _, id := range r.Monitoring {
			path := r.DeltaLogPath(id)
			if !r.fsys.Exists(path) {
				tracef("%s: no delta log for monitoring session %s", r.Dir, id)
				continue
			}
			l, err := deltalog.DecodeFile(r.fsys, path, r.opts.MaxFileBytes, r.opts.DeltaLog)
			if err != nil {
				opsf("skipping delta log: %v", err)
				errs = append(errs, err)
				continue
			}
			logs = append(logs, l)
		}
		return logs, errors.Join(errs...)
	})
}
