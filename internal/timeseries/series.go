// Package timeseries unions the delta logs reachable from a hierarchy
// node into one tagged series.
package timeseries

import (
	"github.com/banshee-data/sgrt.report/internal/deltalog"
	"github.com/banshee-data/sgrt.report/internal/manifest"
	"github.com/banshee-data/sgrt.report/internal/surface"
)

// Provenance tag prefixes, one per level the samples passed through.
const (
	PrefixPatient    = "Patient Details - "
	PrefixSite       = "Site Details - "
	PrefixPhase      = "Phase Details - "
	PrefixField      = "Field Details - "
	PrefixSiteINI    = "site.ini details - "
	PrefixSurface    = "Surface Details - "
	PrefixMonitoring = "Monitoring Details - "
)

// Tags is flat provenance metadata shared by every sample of a segment.
type Tags map[string]any

func (t Tags) with(extra map[string]any) Tags {
	out := make(Tags, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Segment is one delta log and its provenance.
type Segment struct {
	Log  *deltalog.Log
	Tags Tags
}

// Series is an unordered union of segments.
type Series struct {
	Segments []Segment
}

// Len returns the total number of samples.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, seg := range s.Segments {
		n += len(seg.Log.Samples)
	}
	return n
}

// Row is a sample with the tags of its segment.
type Row struct {
	deltalog.Sample
	Tags Tags
}

// Rows flattens the series in segment order.
func (s *Series) Rows() []Row {
	if s == nil {
		return nil
	}
	rows := make([]Row, 0, s.Len())
	for _, seg := range s.Segments {
		for _, smp := range seg.Log.Samples {
			rows = append(rows, Row{Sample: smp, Tags: seg.Tags})
		}
	}
	return rows
}

// Aggregator builds series bottom-up. Delta logs that fail to decode are
// skipped and recorded in Skipped.
type Aggregator struct {
	Skipped []error
}

// Surface returns one segment per decoded delta log of r, or nil when r
// has none.
func (a *Aggregator) Surface(r *surface.Record) *Series {
	logs, err := r.DeltaLogs()
	if err != nil {
		a.skip(err)
	}
	if len(logs) == 0 {
		return nil
	}

	base := make(Tags)
	for k, v := range r.Site {
		base[PrefixSiteINI+k] = v
	}
	for k, v := range r.Details() {
		base[PrefixSurface+k] = v
	}

	s := &Series{}
	for _, l := range logs {
		tags := base.with(monitoringTags(l))
		s.Segments = append(s.Segments, Segment{Log: l, Tags: tags})
	}
	tracef("%s: %d segments, %d samples", r.Dir, len(s.Segments), s.Len())
	return s
}

func monitoringTags(l *deltalog.Log) map[string]any {
	out := make(map[string]any, len(l.Header))
	for k, v := range l.Header {
		out[PrefixMonitoring+k] = v
	}
	out[PrefixMonitoring+deltalog.HeaderStartTime] = l.Start
	if !l.End.IsZero() {
		out[PrefixMonitoring+deltalog.HeaderEndTime] = l.End
	}
	return out
}

func (a *Aggregator) skip(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		a.Skipped = append(a.Skipped, joined.Unwrap()...)
		return
	}
	a.Skipped = append(a.Skipped, err)
}

// Field unions the series of the attached surfaces.
func (a *Aggregator) Field(f manifest.Field) *Series {
	var parts []*Series
	for _, r := range f.Surfaces() {
		parts = append(parts, a.Surface(r))
	}
	return union(parts, f.Details().Flatten(PrefixField))
}

// Phase unions the series of its fields.
func (a *Aggregator) Phase(p manifest.Phase) *Series {
	var parts []*Series
	for _, f := range p.Fields() {
		parts = append(parts, a.Field(f))
	}
	return union(parts, p.Details().Flatten(PrefixPhase))
}

// Site unions the series of its phases.
func (a *Aggregator) Site(s manifest.Site) *Series {
	var parts []*Series
	for _, p := range s.Phases() {
		parts = append(parts, a.Phase(p))
	}
	return union(parts, s.Details().Flatten(PrefixSite))
}

// Patient unions the series of every site.
func (a *Aggregator) Patient(p manifest.Patient) *Series {
	var parts []*Series
	for _, s := range p.Sites() {
		parts = append(parts, a.Site(s))
	}
	out := union(parts, p.Details().Flatten(PrefixPatient))
	diagf("patient series: %d segments, %d samples, %d skipped logs", len(segmentsOf(out)), out.Len(), len(a.Skipped))
	return out
}

// union concatenates non-nil parts and adds tags to every segment. It
// returns nil when there is nothing to union.
func union(parts []*Series, tags map[string]any) *Series {
	var out *Series
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out == nil {
			out = &Series{}
		}
		for _, seg := range p.Segments {
			out.Segments = append(out.Segments, Segment{Log: seg.Log, Tags: seg.Tags.with(tags)})
		}
	}
	return out
}

func segmentsOf(s *Series) []Segment {
	if s == nil {
		return nil
	}
	return s.Segments
}
