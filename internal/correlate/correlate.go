// Package correlate attaches decoded captures to the Field they were
// acquired for by joining on the (site, phase, field) descriptions.
package correlate

import (
	"fmt"
	"strings"

	"github.com/banshee-data/sgrt.report/internal/manifest"
	"github.com/banshee-data/sgrt.report/internal/surface"
)

// DiagnosticKind classifies a correlation finding.
type DiagnosticKind int

const (
	// NoMatch: the record's keys match no Field.
	NoMatch DiagnosticKind = iota
	// MissingKeys: site.ini lacks part of the key triple.
	MissingKeys
	// Ambiguous: several Fields share the triple; the first won.
	Ambiguous
	// DuplicateSibling: sibling nodes share a Description.
	DuplicateSibling
)

func (k DiagnosticKind) String() string {
	switch k {
	case NoMatch:
		return "no-match"
	case MissingKeys:
		return "missing-keys"
	case Ambiguous:
		return "ambiguous"
	case DuplicateSibling:
		return "duplicate-sibling"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// Diagnostic is an observable correlation problem. Surface is nil for
// DuplicateSibling.
type Diagnostic struct {
	Kind    DiagnosticKind
	Surface *surface.Record
	Keys    surface.Keys
	Nodes   []manifest.NodeID // losing candidates, or the duplicated siblings
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Surface != nil {
		fmt.Fprintf(&b, " %s", d.Surface.Dir)
	}
	if d.Keys != (surface.Keys{}) {
		fmt.Fprintf(&b, " keys=%s", d.Keys)
	}
	if len(d.Nodes) > 0 {
		fmt.Fprintf(&b, " nodes=%v", d.Nodes)
	}
	return b.String()
}

// Result summarises a join.
type Result struct {
	Attached    map[manifest.NodeID]int // surfaces per Field
	Unattached  []*surface.Record
	Diagnostics []Diagnostic
}

// Join attaches every record whose keys exactly match a Field's
// Site/Phase/Field descriptions, then seals the tree. Records that do not
// match are returned in Result.Unattached; none are dropped.
func Join(tree *manifest.Tree, records []*surface.Record) (*Result, error) {
	if tree.Sealed() {
		return nil, manifest.ErrSealed
	}
	res := &Result{Attached: make(map[manifest.NodeID]int)}
	res.Diagnostics = append(res.Diagnostics, duplicateSiblings(tree)...)

	for _, r := range records {
		keys, ok := r.Keys()
		if !ok {
			res.unattached(r, Diagnostic{Kind: MissingKeys, Surface: r, Keys: keys})
			continue
		}
		candidates := match(tree.Root(), keys)
		if len(candidates) == 0 {
			res.unattached(r, Diagnostic{Kind: NoMatch, Surface: r, Keys: keys})
			continue
		}
		winner := candidates[0]
		if err := tree.Attach(winner.ID(), r); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", r.Dir, err)
		}
		res.Attached[winner.ID()]++
		tracef("attached %s to field %d (%s)", r.Dir, winner.ID(), keys)

		if len(candidates) > 1 {
			d := Diagnostic{Kind: Ambiguous, Surface: r, Keys: keys}
			for _, c := range candidates[1:] {
				d.Nodes = append(d.Nodes, c.ID())
			}
			opsf("%s: attached to first of %d matching fields", r.Dir, len(candidates))
			res.Diagnostics = append(res.Diagnostics, d)
		}
	}

	tree.Seal()
	diagf("correlated %d of %d surfaces, %d unattached", len(records)-len(res.Unattached), len(records), len(res.Unattached))
	return res, nil
}

func (res *Result) unattached(r *surface.Record, d Diagnostic) {
	opsf("unattached surface %s: %s", r.Dir, d)
	res.Unattached = append(res.Unattached, r)
	res.Diagnostics = append(res.Diagnostics, d)
}

// match walks Sites, Phases and Fields in order with exact string
// equality and returns every matching Field, first match first.
func match(p manifest.Patient, k surface.Keys) []manifest.Field {
	var out []manifest.Field
	for _, site := range p.Sites() {
		if site.Description() != k.Site {
			continue
		}
		for _, phase := range site.Phases() {
			if phase.Description() != k.Phase {
				continue
			}
			for _, field := range phase.Fields() {
				if field.Description() == k.Field {
					out = append(out, field)
				}
			}
		}
	}
	return out
}

func duplicateSiblings(tree *manifest.Tree) []Diagnostic {
	var out []Diagnostic
	for i := 0; i < tree.Len(); i++ {
		n := tree.Node(manifest.NodeID(i))
		groups := make(map[string][]manifest.NodeID)
		var order []string
		for _, c := range n.Children {
			desc := tree.Node(c).Details.Description()
			if _, seen := groups[desc]; !seen {
				order = append(order, desc)
			}
			groups[desc] = append(groups[desc], c)
		}
		for _, desc := range order {
			if ids := groups[desc]; len(ids) > 1 {
				diagf("%d %s nodes share description %q", len(ids), tree.Node(ids[0]).Kind, desc)
				out = append(out, Diagnostic{Kind: DuplicateSibling, Nodes: ids})
			}
		}
	}
	return out
}

// Count returns the number of diagnostics of kind k.
func (res *Result) Count(k DiagnosticKind) int {
	n := 0
	for _, d := range res.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}
