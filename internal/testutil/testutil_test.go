package testutil

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
)

func TestServe(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"method":%q,"path":%q}`, r.Method, r.URL.Path)
	})

	resp := Serve(h, http.MethodGet, "/api/patients")
	AssertStatusCode(t, resp, http.StatusOK)

	var got struct{ Method, Path string }
	DecodeJSON(t, resp, &got)
	if got.Method != http.MethodGet || got.Path != "/api/patients" {
		t.Errorf("got %+v", got)
	}
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "patient not found", http.StatusNotFound)
	})

	resp := Serve(h, http.MethodGet, "/api/patients/1/sessions")
	AssertStatusCode(t, resp, http.StatusNotFound)
	if body := ReadBody(t, resp); body != "patient not found\n" {
		t.Errorf("body = %q", body)
	}
}

func TestManifestXML(t *testing.T) {
	t.Parallel()

	xml := ChestManifest("12345").XML()
	for _, want := range []string{
		"<Patient>",
		"<PatientID>12345</PatientID>",
		"<Description>Chest</Description>",
		"<Description>Plan1</Description>",
		"<Description>F2</Description>",
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("manifest missing %q", want)
		}
	}
}

func TestDeltaLogText(t *testing.T) {
	t.Parallel()

	d := DeltaLog{ID: "210101_120000", Legacy: true, Rows: []DeltaRow{{Elapsed: 1, Vrt: 0.25, BeamOn: true}}}
	text := d.Text()

	lines := strings.Split(text, "\n")
	if len(lines) < 13 {
		t.Fatalf("got %d lines, want at least 13", len(lines))
	}
	if !strings.HasPrefix(lines[6], "Start Time:, 210101_120000") {
		t.Errorf("line 7 = %q", lines[6])
	}
	if !strings.Contains(lines[11], "D.VRT (mm)") {
		t.Errorf("column header = %q, want millimetre columns", lines[11])
	}
	if lines[12] != "1, 2.5, 0, 0, 0, 0, 0, 1" {
		t.Errorf("row = %q", lines[12])
	}
}

func TestWritePatient(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	WritePatient(fsys, "pdata/12345", ChestManifest("12345"), Capture{
		Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1", Label: "Setup",
		Deltas: []DeltaLog{{ID: "210101_120000", Rows: SessionRows(3, 0.1, 0, 0, true)}},
	})

	for _, p := range []string{
		"pdata/12345/Patient Details.vpax",
		"pdata/12345/210101 115500/capture.ini",
		"pdata/12345/210101 115500/site.ini",
		"pdata/12345/210101 115500/capture.obj",
		"pdata/12345/210101 115500/VRTToIsoTransformation.tfm",
		"pdata/12345/210101 115500/Monitoring_210101_120000/RealTimeDeltas_210101_120000.txt",
	} {
		if !fsys.Exists(filepath.FromSlash(p)) {
			t.Errorf("missing %s", p)
		}
	}

	site, err := fsys.ReadFile(filepath.FromSlash("pdata/12345/210101 115500/site.ini"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(site), "Phase=\"Plan1\"") {
		t.Errorf("site.ini = %q, want quoted phase", site)
	}
}
