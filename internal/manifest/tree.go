// Package manifest models a patient's Site/Phase/Field hierarchy and
// parses it from the XML manifest.
package manifest

import (
	"errors"
	"fmt"

	"github.com/banshee-data/sgrt.report/internal/surface"
)

// Kind is the level of a node in the hierarchy.
type Kind int

const (
	KindPatient Kind = iota
	KindSite
	KindPhase
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindPatient:
		return "Patient"
	case KindSite:
		return "Site"
	case KindPhase:
		return "Phase"
	case KindField:
		return "Field"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// NodeID indexes a node within its Tree.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is one element of the hierarchy.
type Node struct {
	ID       NodeID
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Details  Details

	surfaces []*surface.Record
}

// ErrSealed is returned when attaching to a sealed tree.
var ErrSealed = errors.New("tree is sealed")

// Tree owns every node of one patient. Node 0 is the Patient. The tree is
// immutable apart from surface attachment, which ends when it is sealed.
type Tree struct {
	nodes    []Node
	sealed   bool
	attached map[*surface.Record]NodeID

	// FieldErrors holds the typed values that failed conversion.
	FieldErrors []*ParseValueError
}

func newTree() *Tree {
	return &Tree{attached: make(map[*surface.Record]NodeID)}
}

func (t *Tree) add(kind Kind, parent NodeID, d Details) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{ID: id, Kind: kind, Parent: parent, Details: d})
	if parent != NoNode {
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}
	return id
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node with the given id. It panics on an id from
// another tree.
func (t *Tree) Node(id NodeID) *Node { return &t.nodes[id] }

// Root returns the Patient view.
func (t *Tree) Root() Patient { return Patient{view{t, 0}} }

// Depth returns the number of levels on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := make([]int, len(t.nodes))
	deepest := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Parent == NoNode {
			depth[i] = 1
		} else {
			depth[i] = depth[n.Parent] + 1
		}
		if depth[i] > deepest {
			deepest = depth[i]
		}
	}
	return deepest
}

// Fields returns every Field in document order.
func (t *Tree) Fields() []Field {
	var out []Field
	for i := range t.nodes {
		if t.nodes[i].Kind == KindField {
			out = append(out, Field{view{t, NodeID(i)}})
		}
	}
	return out
}

// Attach adds r to the surfaces of the Field id. A record can be attached
// once, and only before the tree is sealed.
func (t *Tree) Attach(id NodeID, r *surface.Record) error {
	if t.sealed {
		return ErrSealed
	}
	if id < 0 || int(id) >= len(t.nodes) || t.nodes[id].Kind != KindField {
		return fmt.Errorf("node %d is not a Field", id)
	}
	if prev, ok := t.attached[r]; ok {
		return fmt.Errorf("surface %s already attached to node %d", r.Dir, prev)
	}
	t.nodes[id].surfaces = append(t.nodes[id].surfaces, r)
	t.attached[r] = id
	return nil
}

// FieldOf returns the Field r is attached to.
func (t *Tree) FieldOf(r *surface.Record) (Field, bool) {
	id, ok := t.attached[r]
	if !ok {
		return Field{}, false
	}
	return Field{view{t, id}}, true
}

// Seal ends surface attachment.
func (t *Tree) Seal() { t.sealed = true }

// Sealed reports whether Seal has been called.
func (t *Tree) Sealed() bool { return t.sealed }

type view struct {
	t  *Tree
	id NodeID
}

// ID returns the node id.
func (v view) ID() NodeID { return v.id }

// Details returns the node's details.
func (v view) Details() Details { return v.t.nodes[v.id].Details }

// Description returns the node's join key.
func (v view) Description() string { return v.Details().Description() }

// Patient is the root of the hierarchy.
type Patient struct{ view }

// Sites returns the patient's sites in manifest order.
func (p Patient) Sites() []Site {
	return childViews(p.view, func(v view) Site { return Site{v} })
}

// Site is a treatment site.
type Site struct{ view }

// Phases returns the site's phases in manifest order.
func (s Site) Phases() []Phase {
	return childViews(s.view, func(v view) Phase { return Phase{v} })
}

// Patient returns the owning patient.
func (s Site) Patient() Patient { return Patient{s.parent()} }

// Phase is a treatment phase (plan).
type Phase struct{ view }

// Fields returns the phase's fields in manifest order.
func (p Phase) Fields() []Field {
	return childViews(p.view, func(v view) Field { return Field{v} })
}

// Site returns the owning site.
func (p Phase) Site() Site { return Site{p.parent()} }

// Field is a treatment field; captures are attached to fields.
type Field struct{ view }

// Phase returns the owning phase.
func (f Field) Phase() Phase { return Phase{f.parent()} }

// Surfaces returns the attached captures in attachment order.
func (f Field) Surfaces() []*surface.Record {
	return f.t.nodes[f.id].surfaces
}

func (v view) parent() view {
	return view{v.t, v.t.nodes[v.id].Parent}
}

func childViews[T any](v view, wrap func(view) T) []T {
	children := v.t.nodes[v.id].Children
	out := make([]T, 0, len(children))
	for _, c := range children {
		out = append(out, wrap(view{v.t, c}))
	}
	return out
}
