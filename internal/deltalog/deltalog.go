// Package deltalog decodes real-time delta logs: a fixed block of
// "Key:, Value" header lines followed by a CSV body of positional and
// rotational deviations sampled during a monitoring session.
package deltalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/units"
)

// Header keys and column names used by the decoder. Column names are
// compared after trimming surrounding whitespace.
const (
	HeaderStartTime = "Start Time"
	HeaderEndTime   = "End Time"
	TimestampLayout = "060102_150405"

	ColumnElapsed = "Elapsed Time (sec)"
	ColumnRtn     = "D.Rtn (deg)"
	ColumnRoll    = "D.Roll (deg)"
	ColumnPitch   = "D.Pitch (deg)"
	ColumnXRay    = "XRayState"
)

// Translational axes in column order.
var Axes = [3]string{"VRT", "LAT", "LNG"}

// Options control decoding. The zero value uses UTC, 11 header lines and
// the 999 lost-tracking sentinel.
type Options struct {
	Location              *time.Location
	HeaderLines           int
	LostTrackingMagnitude float64
}

const (
	defaultHeaderLines           = 11
	defaultLostTrackingMagnitude = 999.0
)

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.HeaderLines <= 0 {
		o.HeaderLines = defaultHeaderLines
	}
	if o.LostTrackingMagnitude <= 0 {
		o.LostTrackingMagnitude = defaultLostTrackingMagnitude
	}
	return o
}

// Sample is one decoded row. Translations are always centimetres.
type Sample struct {
	ClockTime      time.Time
	ElapsedSeconds float64

	VrtCM    float64
	LatCM    float64
	LngCM    float64
	RtnDeg   float64
	RollDeg  float64
	PitchDeg float64

	BeamOn       bool
	Magnitude    float64
	TrackingLost bool

	// Invalid marks a row whose translation cells were blank, non-numeric
	// or non-finite. The bad axes and Magnitude are NaN.
	Invalid bool

	// Values is the raw numeric row aligned to Log.Columns. Cells that
	// are not numeric are NaN.
	Values []float64
}

// Log is a decoded delta log.
type Log struct {
	Path    string
	Header  map[string]string
	Start   time.Time
	End     time.Time // zero when the header carries no End Time
	Columns []string
	Unit    string // units.CM, or units.MM for legacy millimetre files
	Samples []Sample

	// CellErrors lists every required cell that failed conversion.
	// SkippedRows counts rows dropped for an unusable elapsed time.
	CellErrors  []*ParseValueError
	SkippedRows int
}

// Duration returns the span covered by the samples.
func (l *Log) Duration() time.Duration {
	if len(l.Samples) == 0 {
		return 0
	}
	return l.Samples[len(l.Samples)-1].ClockTime.Sub(l.Samples[0].ClockTime)
}

// DecodeFile reads and decodes the delta log at path.
func DecodeFile(fsys fsutil.FileSystem, path string, maxBytes int64, opts Options) (*Log, error) {
	data, err := fsutil.ReadFileMax(fsys, path, maxBytes)
	if err != nil {
		return nil, &DeltaLogFormatError{Path: path, Reason: "read failed", Err: err}
	}
	l, err := Decode(bytes.NewReader(data), opts)
	if err != nil {
		var dfe *DeltaLogFormatError
		if errors.As(err, &dfe) && dfe.Path == "" {
			dfe.Path = path
		}
		return nil, err
	}
	l.Path = path
	if len(l.CellErrors) > 0 {
		opsf("%s: %d bad cells, %d rows skipped", path, len(l.CellErrors), l.SkippedRows)
	}
	return l, nil
}

// Decode reads a delta log from r.
func Decode(r io.Reader, opts Options) (*Log, error) {
	opts = opts.withDefaults()
	br := bufio.NewReader(r)

	header, err := readHeader(br, opts.HeaderLines)
	if err != nil {
		return nil, err
	}

	l := &Log{Header: header}
	start, ok := header[HeaderStartTime]
	if !ok {
		return nil, &DeltaLogFormatError{Reason: "missing Start Time header"}
	}
	l.Start, err = time.ParseInLocation(TimestampLayout, start, opts.Location)
	if err != nil {
		return nil, &DeltaLogFormatError{Reason: "bad Start Time header",
			Err: &ParseValueError{Column: HeaderStartTime, Value: start, Err: err}}
	}
	if end, ok := header[HeaderEndTime]; ok {
		l.End, err = time.ParseInLocation(TimestampLayout, end, opts.Location)
		if err != nil {
			return nil, &DeltaLogFormatError{Reason: "bad End Time header",
				Err: &ParseValueError{Column: HeaderEndTime, Value: end, Err: err}}
		}
	}

	if err := decodeBody(br, opts, l); err != nil {
		return nil, err
	}
	tracef("decoded %d samples starting %s (%s)", len(l.Samples), l.Start.Format(time.DateTime), l.Unit)
	return l, nil
}

// readHeader consumes exactly n lines. Values are cut at the first NUL
// and empty values are left out of the map.
func readHeader(br *bufio.Reader, n int) (map[string]string, error) {
	header := make(map[string]string, n)
	for i := 0; i < n; i++ {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, &DeltaLogFormatError{Line: i + 1, Reason: fmt.Sprintf("header truncated after %d of %d lines", i, n)}
			}
			return nil, &DeltaLogFormatError{Line: i + 1, Reason: "read failed", Err: err}
		}
		line = strings.TrimRight(line, "\r\n")
		key, value, found := strings.Cut(line, ":, ")
		if !found {
			key = strings.TrimSuffix(key, ":,")
		}
		if nul := strings.IndexByte(value, 0); nul >= 0 {
			value = value[:nul]
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		header[key] = value
	}
	return header, nil
}

type columnIndex struct {
	elapsed             int
	trans               [3]int
	transUnit           [3]string
	rtn, roll, pitch, x int
}

func lookup(names map[string]int, name string) int {
	if i, ok := names[name]; ok {
		return i
	}
	return -1
}

func resolveColumns(columns []string) (columnIndex, string, error) {
	names := make(map[string]int, len(columns))
	for i, c := range columns {
		names[strings.TrimSpace(c)] = i
	}

	idx := columnIndex{
		elapsed: lookup(names, ColumnElapsed),
		rtn:     lookup(names, ColumnRtn),
		roll:    lookup(names, ColumnRoll),
		pitch:   lookup(names, ColumnPitch),
		x:       lookup(names, ColumnXRay),
	}
	if idx.elapsed < 0 {
		return idx, "", fmt.Errorf("missing %q column", ColumnElapsed)
	}

	unit := units.CM
	for a, axis := range Axes {
		if i := lookup(names, units.ColumnName(axis, units.CM)); i >= 0 {
			idx.trans[a], idx.transUnit[a] = i, units.CM
			continue
		}
		if i := lookup(names, units.ColumnName(axis, units.MM)); i >= 0 {
			idx.trans[a], idx.transUnit[a] = i, units.MM
			unit = units.MM
			continue
		}
		return idx, "", fmt.Errorf("missing %s translation column", axis)
	}
	return idx, unit, nil
}

func decodeBody(br *bufio.Reader, opts Options, l *Log) error {
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	lineOffset := opts.HeaderLines
	columns, err := cr.Read()
	if err == io.EOF {
		return &DeltaLogFormatError{Line: lineOffset + 1, Reason: "missing column header row"}
	}
	if err != nil {
		return &DeltaLogFormatError{Line: lineOffset + 1, Reason: "bad column header row", Err: err}
	}
	l.Columns = columns

	idx, unit, err := resolveColumns(columns)
	if err != nil {
		line, _ := cr.FieldPos(0)
		return &DeltaLogFormatError{Line: lineOffset + line, Reason: "unusable column header", Err: err}
	}
	l.Unit = unit

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = lineOffset + pe.StartLine
			}
			return &DeltaLogFormatError{Line: line, Reason: "bad CSV row", Err: err}
		}
		line, _ := cr.FieldPos(0)
		line += lineOffset
		s, bad, err := decodeRow(record, columns, idx, opts, l.Start)
		for _, pve := range bad {
			pve.Line = line
			diagf("delta log: %v", pve)
		}
		l.CellErrors = append(l.CellErrors, bad...)
		if err != nil {
			l.SkippedRows++
			continue
		}
		l.Samples = append(l.Samples, s)
	}
	return nil
}

// decodeRow decodes one body row. A bad elapsed cell cannot be placed in
// time and returns errSkipRow; a bad translation cell leaves the sample
// Invalid. Neither aborts the log.
func decodeRow(record, columns []string, idx columnIndex, opts Options, start time.Time) (Sample, []*ParseValueError, error) {
	s := Sample{Values: make([]float64, len(columns))}
	for i := range s.Values {
		s.Values[i] = math.NaN()
		if i < len(record) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err == nil {
				s.Values[i] = v
			}
		}
	}

	var bad []*ParseValueError
	required := func(i int) (float64, bool) {
		var raw string
		if i < len(record) {
			raw = strings.TrimSpace(record[i])
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = errNotFinite
		}
		if err != nil {
			bad = append(bad, &ParseValueError{Column: strings.TrimSpace(columns[i]), Value: raw, Err: err})
			return math.NaN(), false
		}
		return v, true
	}
	optional := func(i int) float64 {
		if i < 0 || math.IsNaN(s.Values[i]) {
			return 0
		}
		return s.Values[i]
	}

	elapsed, ok := required(idx.elapsed)
	if !ok {
		return s, bad, errSkipRow
	}
	s.ElapsedSeconds = elapsed
	var trans [3]float64
	for a := range trans {
		v, ok := required(idx.trans[a])
		if !ok {
			s.Invalid = true
		}
		trans[a] = units.ToCentimeters(v, idx.transUnit[a])
	}
	s.VrtCM, s.LatCM, s.LngCM = trans[0], trans[1], trans[2]
	s.RtnDeg = optional(idx.rtn)
	s.RollDeg = optional(idx.roll)
	s.PitchDeg = optional(idx.pitch)
	s.BeamOn = optional(idx.x) == 1

	s.Magnitude = math.Sqrt(s.VrtCM*s.VrtCM + s.LatCM*s.LatCM + s.LngCM*s.LngCM)
	s.TrackingLost = !s.Invalid && s.Magnitude >= opts.LostTrackingMagnitude
	s.ClockTime = start.Add(time.Duration(s.ElapsedSeconds * float64(time.Second)))
	return s, bad, nil
}
