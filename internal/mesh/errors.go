package mesh

import "fmt"

// MeshDecodeError reports a geometry or transform file that cannot be
// turned into a usable mesh. It is fatal for the mesh being decoded.
type MeshDecodeError struct {
	Path   string // file being decoded, empty for in-memory readers
	Line   int    // 1-based line number, 0 when not line specific
	Reason string
	Err    error
}

func (e *MeshDecodeError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "mesh"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *MeshDecodeError) Unwrap() error { return e.Err }
