package surface

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sgrt.report/internal/deltalog"
	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/testutil"
)

func TestParseINI(t *testing.T) {
	t.Parallel()

	data := []byte("[Capture]\r\nLabel=Setup\r\nNotes=a=b\r\nLabel=\r\n\r\nbroken line\r\nName=Ren\xe9e\r\n")
	values, warnings := ParseINI(data)

	assert.Equal(t, "Setup", values["Label"], "blank duplicate does not clobber")
	assert.Equal(t, "a=b", values["Notes"], "split on first '='")
	assert.Equal(t, "Renée", values["Name"], "Latin-1 decoded")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "broken line")
}

func TestUnquote(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`"Plan1"`: "Plan1",
		`'F1'`:    "F1",
		`Plan1`:   "Plan1",
		`"`:       `"`,
		`""`:      "",
		`"F1'`:    `"F1'`,
	}
	for in, want := range tests {
		assert.Equal(t, want, Unquote(in), "Unquote(%q)", in)
	}
}

func writeChestCapture(t *testing.T, c testutil.Capture) (*fsutil.MemoryFileSystem, string) {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	return fsys, testutil.WriteCapture(fsys, "pdata/12345", c)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{
		Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1", Label: "Setup",
		Extra: map[string]string{"Operator": "RT"},
		Deltas: []testutil.DeltaLog{
			{ID: "210101_120000", Rows: testutil.SessionRows(2, 0.1, 0, 0, true)},
			{ID: "210101_121000", Rows: testutil.SessionRows(3, 0.2, 0, 0, false)},
		},
	})

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)

	keys, ok := r.Keys()
	require.True(t, ok)
	assert.Equal(t, Keys{Site: "Chest", Phase: "Plan1", Field: "F1"}, keys)
	assert.Equal(t, time.Date(2021, 1, 1, 11, 55, 0, 0, time.UTC), r.CreatedAt)
	assert.Equal(t, "F1 - Setup - 2021-01-01 11:55:00", r.DisplayName)
	assert.Equal(t, []string{"210101_120000", "210101_121000"}, r.Monitoring)
	assert.Empty(t, r.Warnings)

	d := r.Details()
	assert.Equal(t, "RT", d["Operator"])
	assert.Equal(t, r.CreatedAt, d[DetailCreationTime])
	assert.Equal(t, r.DisplayName, d[DetailDisplayName])
}

func TestDecode_UnparsableDirectoryName(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{Dir: "capture-a", Site: "Chest", Phase: "Plan1", Field: "F1"})

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)
	assert.True(t, r.CreatedAt.IsZero())
	assert.Equal(t, "F1", r.DisplayName)
	_, ok := r.Details()[DetailCreationTime]
	assert.False(t, ok)
}

func TestDecode_MissingKeys(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{Dir: "210101 115500", Site: "", Phase: "Plan1", Field: "F1"})

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)
	_, ok := r.Keys()
	assert.False(t, ok)
}

func TestDecode_MissingINI(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("pdata/12345/210101 115500/capture.ini", []byte("Label=Setup\n"))

	_, err := Decode(fsys, "pdata/12345/210101 115500", Options{})
	assert.Error(t, err)
}

func TestRecord_DeltaLogs(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{
		Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1",
		Deltas: []testutil.DeltaLog{
			{ID: "210101_120000", Rows: testutil.SessionRows(2, 0.1, 0, 0, true)},
			{ID: "210101_121000", Legacy: true, Rows: testutil.SessionRows(3, 0.2, 0, 0, false)},
		},
	})
	// A broken log and a monitoring directory without a log.
	fsys.WriteFile(filepath.Join(dir, "Monitoring_bad", "RealTimeDeltas_bad.txt"), []byte("Start Time:, nope\n"))
	fsys.MkdirAll(filepath.Join(dir, "Monitoring_empty"))

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)
	assert.Len(t, r.Monitoring, 4)

	logs, err := r.DeltaLogs()
	require.Len(t, logs, 2)
	var dfe *deltalog.DeltaLogFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Contains(t, dfe.Path, "RealTimeDeltas_bad.txt")
	assert.Equal(t, 2, len(logs[0].Samples))
	assert.Equal(t, 3, len(logs[1].Samples))

	again, _ := r.DeltaLogs()
	assert.Same(t, logs[0], again[0], "memoised")
}

func TestRecord_Mesh(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1"})

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)
	m, err := r.Mesh()
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 3)

	again, err := r.Mesh()
	require.NoError(t, err)
	assert.Same(t, m, again)
}

func TestRecord_MeshMissing(t *testing.T) {
	t.Parallel()

	fsys, dir := writeChestCapture(t, testutil.Capture{Dir: "210101 115500", Site: "Chest", Phase: "Plan1", Field: "F1", NoMesh: true})

	r, err := Decode(fsys, dir, Options{})
	require.NoError(t, err)
	_, err = r.Mesh()
	assert.Error(t, err)
}
