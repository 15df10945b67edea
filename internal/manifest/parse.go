package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
)

// TagsVersion identifies the revision of Tags. Bump it when the list
// changes so stored exports can be told apart.
const TagsVersion = 1

// Tags lists the direct-child tags extracted from every node. Other tags
// are ignored.
var Tags = []string{
	"Patient",
	"GUID",
	"Description",
	"IsFromDicom",
	"FirstName",
	"MiddleName",
	"Surname",
	"PatientID",
	"PatientVersion",
	"Notes",
	"Site",
	"Phase",
	"Field",
	"IsoRotValue",
	"LatestApprovedSurfaceDateTimeStamp",
	"IsIsoCenterField",
	"RepresentedCouchRotation",
	"IsoXValue",
	"IsoYValue",
	"IsoZValue",
	"IsApproved",
	"DicomRTPlanUID",
	"Sex",
	"DOB",
	"LatestApprovedRecordSurfaceTimestamp",
	"IsDynamicBeamType",
	"LastUsedPlotterType",
	"PatientTextureLuminosity",
}

type valueType int

const (
	typeString valueType = iota
	typeDate
	typeBool
	typeInt
	typeFloat
)

var tagTypes = map[string]valueType{
	"DOB":                                  typeDate,
	"LatestApprovedSurfaceDateTimeStamp":   typeDate,
	"LatestApprovedRecordSurfaceTimestamp": typeDate,
	"IsFromDicom":                          typeBool,
	"IsApproved":                           typeBool,
	"IsIsoCenterField":                     typeBool,
	"IsDynamicBeamType":                    typeBool,
	"LastUsedPlotterType":                  typeInt,
	"PatientTextureLuminosity":             typeInt,
	"IsoRotValue":                          typeFloat,
	"RepresentedCouchRotation":             typeFloat,
	"IsoXValue":                            typeFloat,
	"IsoYValue":                            typeFloat,
	"IsoZValue":                            typeFloat,
}

// element is a generic XML node: its character data and child elements.
type element struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []element `xml:",any"`
}

func (e *element) child(tag string) *element {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == tag {
			return &e.Children[i]
		}
	}
	return nil
}

// ParseFile reads and parses the manifest at path.
func ParseFile(fsys fsutil.FileSystem, path string, maxBytes int64, loc *time.Location) (*Tree, error) {
	data, err := fsutil.ReadFileMax(fsys, path, maxBytes)
	if err != nil {
		return nil, &ManifestFormatError{Path: path, Reason: "read failed", Err: err}
	}
	t, err := Parse(bytes.NewReader(data), loc)
	if err != nil {
		var mfe *ManifestFormatError
		if errors.As(err, &mfe) {
			mfe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// Parse builds the hierarchy from a manifest whose root element is the
// Patient. Dates are interpreted in loc (UTC when nil).
func Parse(r io.Reader, loc *time.Location) (*Tree, error) {
	if loc == nil {
		loc = time.UTC
	}

	var root element
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, &ManifestFormatError{Reason: "invalid XML", Err: err}
	}
	if root.XMLName.Local != "Patient" {
		return nil, &ManifestFormatError{Reason: fmt.Sprintf("root element is <%s>, want <Patient>", root.XMLName.Local)}
	}

	p := &parser{t: newTree(), loc: loc}
	patient := p.node(KindPatient, NoNode, &root)
	if err := p.children(patient, &root, "Sites", "Site", KindSite); err != nil {
		return nil, err
	}
	for _, site := range p.t.nodes[patient].Children {
		if err := p.children(site, p.elems[site], "Phases", "Phase", KindPhase); err != nil {
			return nil, err
		}
	}
	for i := range p.t.nodes {
		if p.t.nodes[i].Kind != KindPhase {
			continue
		}
		phase := NodeID(i)
		if err := p.children(phase, p.elems[phase], "Fields", "Field", KindField); err != nil {
			return nil, err
		}
	}

	diagf("parsed manifest: %d nodes, %d value errors", p.t.Len(), len(p.t.FieldErrors))
	return p.t, nil
}

type parser struct {
	t     *Tree
	loc   *time.Location
	elems []*element // source element per node id
}

func (p *parser) node(kind Kind, parent NodeID, e *element) NodeID {
	id := p.t.add(kind, parent, nil)
	p.elems = append(p.elems, e)
	p.t.nodes[id].Details = p.details(id, kind, e)
	return id
}

// children adds one node per <item> element inside the required container.
func (p *parser) children(parent NodeID, e *element, container, item string, kind Kind) error {
	c := e.child(container)
	if c == nil {
		return &ManifestFormatError{Reason: fmt.Sprintf("%s %q has no <%s>",
			p.t.nodes[parent].Kind, p.t.nodes[parent].Details.Description(), container)}
	}
	for i := range c.Children {
		child := &c.Children[i]
		if child.XMLName.Local != item {
			diagf("ignoring <%s> inside <%s>", child.XMLName.Local, container)
			continue
		}
		p.node(kind, parent, child)
	}
	return nil
}

func (p *parser) details(id NodeID, kind Kind, e *element) Details {
	d := make(Details)
	for _, tag := range Tags {
		c := e.child(tag)
		if c == nil {
			continue
		}
		v, err := convert(tag, c.Text, p.loc)
		if err != nil {
			pve := &ParseValueError{Node: id, Kind: kind, Tag: tag, Value: c.Text, Err: err}
			opsf("%v", pve)
			p.t.FieldErrors = append(p.t.FieldErrors, pve)
			continue
		}
		d[tag] = v
	}
	return d
}

// convert applies the tag's type. Empty text stays an empty string and
// booleans other than the literals "true" and "false" stay raw.
func convert(tag, text string, loc *time.Location) (any, error) {
	if text == "" {
		return text, nil
	}
	switch tagTypes[tag] {
	case typeDate:
		return dateparse.ParseIn(text, loc)
	case typeBool:
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return text, nil
	case typeInt:
		return strconv.ParseInt(text, 10, 64)
	case typeFloat:
		return strconv.ParseFloat(text, 64)
	default:
		return text, nil
	}
}
