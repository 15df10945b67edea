// Package treatment segments a patient's delta-log series into treatment
// days and sessions.
//
// Each calendar day holds exactly one session. Two treatments delivered on
// the same day are not split apart.
package treatment

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sgrt.report/internal/timeseries"
)

// Row is a sample rebased to its session.
type Row struct {
	timeseries.Row
	ElapsedMinutes float64 // minutes since the session's first sample
}

// Session is the samples of one day, sorted by clock time.
type Session struct {
	Date  time.Time // midnight of the treatment day
	Start time.Time // earliest sample
	Rows  []Row
}

// Day is a calendar date and its sessions.
type Day struct {
	Date     time.Time
	Sessions []*Session
}

// Calendar is a patient's treatment days in ascending date order.
type Calendar struct {
	Days []*Day
}

type dateKey struct {
	y int
	m time.Month
	d int
}

// NewCalendar partitions s by the calendar date of each sample's clock
// time. It returns nil for a nil or empty series.
func NewCalendar(s *timeseries.Series) *Calendar {
	rows := s.Rows()
	if len(rows) == 0 {
		return nil
	}

	byDate := make(map[dateKey][]timeseries.Row)
	locs := make(map[dateKey]*time.Location)
	for _, r := range rows {
		y, m, d := r.ClockTime.Date()
		k := dateKey{y, m, d}
		byDate[k] = append(byDate[k], r)
		if _, ok := locs[k]; !ok {
			locs[k] = r.ClockTime.Location()
		}
	}

	c := &Calendar{}
	for k, dayRows := range byDate {
		date := time.Date(k.y, k.m, k.d, 0, 0, 0, 0, locs[k])
		c.Days = append(c.Days, &Day{Date: date, Sessions: []*Session{newSession(date, dayRows)}})
	}
	sort.Slice(c.Days, func(i, j int) bool { return c.Days[i].Date.Before(c.Days[j].Date) })
	return c
}

func newSession(date time.Time, rows []timeseries.Row) *Session {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ClockTime.Before(rows[j].ClockTime) })
	s := &Session{Date: date, Start: rows[0].ClockTime, Rows: make([]Row, len(rows))}
	for i, r := range rows {
		s.Rows[i] = Row{Row: r, ElapsedMinutes: r.ClockTime.Sub(s.Start).Minutes()}
	}
	return s
}

// Sessions returns every session in date order.
func (c *Calendar) Sessions() []*Session {
	if c == nil {
		return nil
	}
	var out []*Session
	for _, d := range c.Days {
		out = append(out, d.Sessions...)
	}
	return out
}

// Day returns the day matching date's calendar date.
func (c *Calendar) Day(date time.Time) (*Day, bool) {
	if c == nil {
		return nil, false
	}
	y, m, d := date.Date()
	for _, day := range c.Days {
		dy, dm, dd := day.Date.Date()
		if dy == y && dm == m && dd == d {
			return day, true
		}
	}
	return nil, false
}

// Duration is the span between the first and last sample.
func (s *Session) Duration() time.Duration {
	if len(s.Rows) == 0 {
		return 0
	}
	return s.Rows[len(s.Rows)-1].ClockTime.Sub(s.Start)
}

// Predicate selects rows.
type Predicate func(Row) bool

// Tracked excludes samples where surface tracking was lost or whose
// translations could not be read.
func Tracked(r Row) bool { return !r.TrackingLost && !r.Invalid }

// BeamOn keeps samples acquired while the beam was on.
func BeamOn(r Row) bool { return r.Sample.BeamOn }

// Filter returns a session holding the rows matching every predicate.
// Elapsed minutes keep their original session origin.
func (s *Session) Filter(preds ...Predicate) *Session {
	out := &Session{Date: s.Date, Start: s.Start}
	for _, r := range s.Rows {
		keep := true
		for _, p := range preds {
			if !p(r) {
				keep = false
				break
			}
		}
		if keep {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Column extracts one value per row.
func (s *Session) Column(fn func(Row) float64) []float64 {
	out := make([]float64, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = fn(r)
	}
	return out
}

// Stats summarises a session's tracked samples. Magnitude figures cover
// tracked beam-on samples only and are NaN when there are none.
type Stats struct {
	Samples int
	Tracked int
	BeamOn  int

	MeanMagnitude   float64
	StdDevMagnitude float64
	MaxMagnitude    float64
	P95Magnitude    float64

	MaxAbsRotation float64 // degrees, any axis, tracked samples
}

// Stats computes the session summary.
func (s *Session) Stats() Stats {
	st := Stats{Samples: len(s.Rows)}
	tracked := s.Filter(Tracked)
	delivered := tracked.Filter(BeamOn)
	st.Tracked = len(tracked.Rows)
	st.BeamOn = len(delivered.Rows)

	for _, r := range tracked.Rows {
		for _, v := range []float64{r.RtnDeg, r.RollDeg, r.PitchDeg} {
			st.MaxAbsRotation = math.Max(st.MaxAbsRotation, math.Abs(v))
		}
	}

	mags := delivered.Column(func(r Row) float64 { return r.Magnitude })
	if len(mags) == 0 {
		nan := math.NaN()
		st.MeanMagnitude, st.StdDevMagnitude, st.MaxMagnitude, st.P95Magnitude = nan, nan, nan, nan
		return st
	}
	sort.Float64s(mags)
	st.MeanMagnitude = stat.Mean(mags, nil)
	if len(mags) > 1 {
		st.StdDevMagnitude = stat.StdDev(mags, nil)
	}
	st.MaxMagnitude = floats.Max(mags)
	st.P95Magnitude = stat.Quantile(0.95, stat.Empirical, mags, nil)
	return st
}
