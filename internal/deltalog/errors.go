package deltalog

import (
	"errors"
	"fmt"
)

var (
	errNotFinite = errors.New("value is not finite")
	errSkipRow   = errors.New("row skipped")
)

// DeltaLogFormatError reports a delta log that cannot be decoded. The
// file is skipped by callers; it never aborts a whole patient.
type DeltaLogFormatError struct {
	Path   string
	Line   int // 1-based line in the file, 0 when not line specific
	Reason string
	Err    error
}

func (e *DeltaLogFormatError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "delta log"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *DeltaLogFormatError) Unwrap() error { return e.Err }

// ParseValueError reports a cell or header value that failed conversion.
type ParseValueError struct {
	Line   int // body line of a cell; 0 for header values
	Column string
	Value  string
	Err    error
}

func (e *ParseValueError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid %s value %q: %v", e.Line, e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s value %q: %v", e.Column, e.Value, e.Err)
}

func (e *ParseValueError) Unwrap() error { return e.Err }
