package manifest

import "fmt"

// ManifestFormatError reports a manifest whose structure cannot yield a
// hierarchy. No partial tree is returned with it.
type ManifestFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ManifestFormatError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "manifest"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *ManifestFormatError) Unwrap() error { return e.Err }

// ParseValueError reports a typed tag whose text could not be converted.
// The tag is left out of the node's details; parsing continues.
type ParseValueError struct {
	Node  NodeID
	Kind  Kind
	Tag   string
	Value string
	Err   error
}

func (e *ParseValueError) Error() string {
	return fmt.Sprintf("%s %d: invalid %s value %q: %v", e.Kind, e.Node, e.Tag, e.Value, e.Err)
}

func (e *ParseValueError) Unwrap() error { return e.Err }
