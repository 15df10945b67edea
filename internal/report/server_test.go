package report

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/patient"
	"github.com/banshee-data/sgrt.report/internal/store"
	"github.com/banshee-data/sgrt.report/internal/testutil"
)

func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fsys := fsutil.NewMemoryFileSystem()
	testutil.WritePatient(fsys, "pdata/12345", testutil.ChestManifest("12345"),
		testutil.Capture{Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1",
			Deltas: []testutil.DeltaLog{{ID: "210101_120000", Rows: testutil.SessionRows(4, 0.1, 0, 0, true)}}},
		testutil.Capture{Dir: "210102 115500", Site: "Chest", Phase: "Plan1", Field: "F2",
			Deltas: []testutil.DeltaLog{{ID: "210102_120000", Rows: testutil.SessionRows(3, 0.2, 0, 0, true)}}},
	)
	p, err := patient.Load(fsys, "pdata/12345", patient.Options{})
	require.NoError(t, err)
	require.NoError(t, db.SavePatient(context.Background(), uuid.New(), p))

	plotDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(plotDir, "Magnitude.png"), pngMagic, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(plotDir, "notes.txt"), []byte("x"), 0644))

	h, err := NewServer(db, plotDir, log.New(io.Discard, "", 0)).Handler()
	require.NoError(t, err)
	return h, plotDir
}

func TestServer_Patients(t *testing.T) {
	h, _ := newTestServer(t)

	resp := testutil.Serve(h, http.MethodGet, "/api/patients")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var patients []store.PatientSummary
	testutil.DecodeJSON(t, resp, &patients)
	require.Len(t, patients, 1)
	assert.Equal(t, "12345", patients[0].PatientID)
	assert.Equal(t, 2, patients[0].Sessions)

	resp = testutil.Serve(h, http.MethodPost, "/api/patients")
	testutil.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

func TestServer_Sessions(t *testing.T) {
	h, _ := newTestServer(t)

	resp := testutil.Serve(h, http.MethodGet, "/api/patients/12345/sessions")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var sessions []store.SessionSummary
	testutil.DecodeJSON(t, resp, &sessions)
	require.Len(t, sessions, 2)
	assert.Equal(t, "2021-01-01", sessions[0].Date)
	assert.Equal(t, "2021-01-02", sessions[1].Date)

	resp = testutil.Serve(h, http.MethodGet, "/api/patients/99999/sessions")
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestServer_Runs(t *testing.T) {
	h, _ := newTestServer(t)

	resp := testutil.Serve(h, http.MethodGet, "/api/runs")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.JSONEq(t, "[]", testutil.ReadBody(t, resp))
}

func TestServer_Calendar(t *testing.T) {
	h, _ := newTestServer(t)

	resp := testutil.Serve(h, http.MethodGet, "/charts/12345")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, testutil.ReadBody(t, resp), "2021-01-02")

	resp = testutil.Serve(h, http.MethodGet, "/charts/99999")
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestServer_Plots(t *testing.T) {
	h, _ := newTestServer(t)

	resp := testutil.Serve(h, http.MethodGet, "/plots/Magnitude.png")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, string(pngMagic), testutil.ReadBody(t, resp))

	for _, path := range []string{"/plots/missing.png", "/plots/notes.txt"} {
		resp = testutil.Serve(h, http.MethodGet, path)
		testutil.AssertStatusCode(t, resp, http.StatusNotFound)
	}
}
