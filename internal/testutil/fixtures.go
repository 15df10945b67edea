package testutil

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
)

// TriangleOBJ is a single-triangle capture mesh.
const TriangleOBJ = `ps 3
fs 1
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
vn 0 0 1
vn 0 0 1
f 1//1 2//2 3//3
`

// IdentityTFM is an identity transform file.
const IdentityTFM = "1\t0\t0\t0\n0\t1\t0\t0\n0\t0\t1\t0\n0\t0\t0\t1\n"

// Manifest describes a patient manifest to render as XML.
type Manifest struct {
	PatientID string
	FirstName string
	Surname   string
	DOB       string
	Extra     map[string]string // additional patient-level tags
	Sites     []ManifestSite
}

// ManifestSite is one Site with its Phases.
type ManifestSite struct {
	Description string
	Phases      []ManifestPhase
}

// ManifestPhase is one Phase with its Field descriptions.
type ManifestPhase struct {
	Description string
	Fields      []string
}

// XML renders the manifest with the Patient element as the root.
func (m Manifest) XML() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<Patient>\n")
	writeTag(&b, 1, "PatientID", m.PatientID)
	writeTag(&b, 1, "FirstName", m.FirstName)
	writeTag(&b, 1, "Surname", m.Surname)
	writeTag(&b, 1, "DOB", m.DOB)
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeTag(&b, 1, k, m.Extra[k])
	}
	b.WriteString("  <Sites>\n")
	for _, s := range m.Sites {
		b.WriteString("    <Site>\n")
		writeTag(&b, 3, "Description", s.Description)
		b.WriteString("      <Phases>\n")
		for _, p := range s.Phases {
			b.WriteString("        <Phase>\n")
			writeTag(&b, 5, "Description", p.Description)
			b.WriteString("          <Fields>\n")
			for _, f := range p.Fields {
				b.WriteString("            <Field>\n")
				writeTag(&b, 7, "Description", f)
				writeTag(&b, 7, "IsApproved", "true")
				b.WriteString("            </Field>\n")
			}
			b.WriteString("          </Fields>\n")
			b.WriteString("        </Phase>\n")
		}
		b.WriteString("      </Phases>\n")
		b.WriteString("    </Site>\n")
	}
	b.WriteString("  </Sites>\n</Patient>\n")
	return b.String()
}

func writeTag(b *strings.Builder, depth int, tag, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s<%s>%s</%s>\n", strings.Repeat("  ", depth), tag, value, tag)
}

// ChestManifest is a patient with one site, one phase and two fields.
func ChestManifest(patientID string) Manifest {
	return Manifest{
		PatientID: patientID,
		FirstName: "Jane",
		Surname:   "Doe",
		DOB:       "1970-01-02",
		Sites: []ManifestSite{{
			Description: "Chest",
			Phases: []ManifestPhase{{
				Description: "Plan1",
				Fields:      []string{"F1", "F2"},
			}},
		}},
	}
}

// DeltaRow is one delta-log sample. Translations are in centimetres and
// written as millimetres when the log is legacy.
type DeltaRow struct {
	Elapsed       float64
	Vrt, Lat, Lng float64
	Rtn           float64
	BeamOn        bool
}

// DeltaLog describes a monitoring session.
type DeltaLog struct {
	ID     string // monitoring id, e.g. "210101_120000"
	Start  string // Start Time header; defaults to ID
	Legacy bool   // millimetre columns
	Rows   []DeltaRow
}

// Text renders the delta log.
func (d DeltaLog) Text() string {
	start := d.Start
	if start == "" {
		start = d.ID
	}
	var b strings.Builder
	header := []string{
		"Patient ID:, fixture",
		"Patient Name:, Doe^Jane",
		"Site:, ",
		"Phase:, ",
		"Field:, ",
		"Reference Surface:, ",
		"Start Time:, " + start,
		"End Time:, " + start + "\x00\x00",
		"Threshold:, 0.3",
		"Device:, camera",
		"Version:, 6",
	}
	for _, h := range header {
		b.WriteString(h + "\r\n")
	}

	unit, scale := "cm", 1.0
	if d.Legacy {
		unit, scale = "mm", 10.0
	}
	fmt.Fprintf(&b, "Elapsed Time (sec), D.VRT (%[1]s), D.LAT (%[1]s), D.LNG (%[1]s), D.Rtn (deg), D.Roll (deg), D.Pitch (deg), XRayState\n", unit)
	for _, r := range d.Rows {
		beam := 0
		if r.BeamOn {
			beam = 1
		}
		fmt.Fprintf(&b, "%g, %g, %g, %g, %g, 0, 0, %d\n", r.Elapsed, r.Vrt*scale, r.Lat*scale, r.Lng*scale, r.Rtn, beam)
	}
	return b.String()
}

// Capture describes a capture directory under a patient directory.
type Capture struct {
	Dir    string // basename, e.g. "210101 115500"
	Site   string
	Phase  string
	Field  string
	Label  string
	Extra  map[string]string // additional capture.ini keys
	Deltas []DeltaLog
	NoMesh bool
}

// CaptureINI renders capture.ini content.
func (c Capture) CaptureINI() string {
	var b strings.Builder
	b.WriteString("[Capture]\r\n")
	if c.Label != "" {
		b.WriteString("Label=" + c.Label + "\r\n")
	}
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k + "=" + c.Extra[k] + "\r\n")
	}
	return b.String()
}

// SiteINI renders site.ini content with the quoted Phase and Field the
// device writes.
func (c Capture) SiteINI() string {
	return fmt.Sprintf("[Site]\r\nTreatment Site=%s\r\nPhase=\"%s\"\r\nField=\"%s\"\r\n", c.Site, c.Phase, c.Field)
}

// WriteCapture writes c under patientDir.
func WriteCapture(fsys *fsutil.MemoryFileSystem, patientDir string, c Capture) string {
	dir := filepath.Join(patientDir, c.Dir)
	fsys.WriteFile(filepath.Join(dir, "capture.ini"), []byte(c.CaptureINI()))
	fsys.WriteFile(filepath.Join(dir, "site.ini"), []byte(c.SiteINI()))
	if !c.NoMesh {
		fsys.WriteFile(filepath.Join(dir, "capture.obj"), []byte(TriangleOBJ))
		fsys.WriteFile(filepath.Join(dir, "VRTToIsoTransformation.tfm"), []byte(IdentityTFM))
	}
	for _, d := range c.Deltas {
		fsys.WriteFile(filepath.Join(dir, "Monitoring_"+d.ID, "RealTimeDeltas_"+d.ID+".txt"), []byte(d.Text()))
	}
	return dir
}

// WritePatient writes a manifest and captures to dir.
func WritePatient(fsys *fsutil.MemoryFileSystem, dir string, m Manifest, captures ...Capture) {
	fsys.WriteFile(filepath.Join(dir, "Patient Details.vpax"), []byte(m.XML()))
	for _, c := range captures {
		WriteCapture(fsys, dir, c)
	}
}

// SessionRows returns n one-second samples with a fixed displacement.
func SessionRows(n int, vrt, lat, lng float64, beamOn bool) []DeltaRow {
	rows := make([]DeltaRow, n)
	for i := range rows {
		rows[i] = DeltaRow{Elapsed: float64(i), Vrt: vrt, Lat: lat, Lng: lng, BeamOn: beamOn}
	}
	return rows
}
