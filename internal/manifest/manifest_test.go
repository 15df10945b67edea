package manifest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
	"github.com/banshee-data/sgrt.report/internal/surface"
	"github.com/banshee-data/sgrt.report/internal/testutil"
)

func parseChest(t *testing.T) *Tree {
	t.Helper()
	tree, err := Parse(strings.NewReader(testutil.ChestManifest("12345").XML()), time.UTC)
	require.NoError(t, err)
	return tree
}

func TestParse_Hierarchy(t *testing.T) {
	t.Parallel()

	tree := parseChest(t)
	assert.Equal(t, 4, tree.Depth())
	assert.Equal(t, 5, tree.Len())

	p := tree.Root()
	id, ok := p.Details().String("PatientID")
	require.True(t, ok)
	assert.Equal(t, "12345", id)
	dob, ok := p.Details().Time("DOB")
	require.True(t, ok)
	assert.Equal(t, time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC), dob)

	sites := p.Sites()
	require.Len(t, sites, 1)
	assert.Equal(t, "Chest", sites[0].Description())
	phases := sites[0].Phases()
	require.Len(t, phases, 1)
	assert.Equal(t, "Plan1", phases[0].Description())
	fields := phases[0].Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "F1", fields[0].Description())
	assert.Equal(t, "F2", fields[1].Description())

	approved, ok := fields[0].Details().Bool("IsApproved")
	assert.True(t, ok)
	assert.True(t, approved)

	assert.Equal(t, "Plan1", fields[1].Phase().Description())
	assert.Equal(t, "Chest", fields[1].Phase().Site().Description())
	assert.Equal(t, p.ID(), sites[0].Patient().ID())
	assert.Len(t, tree.Fields(), 2)
	assert.Empty(t, tree.FieldErrors)
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	a, b := parseChest(t), parseChest(t)
	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		na, nb := a.Node(NodeID(i)), b.Node(NodeID(i))
		if diff := cmp.Diff(na.Details, nb.Details); diff != "" {
			t.Errorf("node %d details mismatch (-first +second):\n%s", i, diff)
		}
		assert.Equal(t, na.Kind, nb.Kind)
		assert.Equal(t, na.Children, nb.Children)
	}
}

const typedManifest = `<Patient>
  <PatientID>42</PatientID>
  <Notes></Notes>
  <IsFromDicom>yes</IsFromDicom>
  <IsDynamicBeamType>false</IsDynamicBeamType>
  <LastUsedPlotterType>3</LastUsedPlotterType>
  <PatientTextureLuminosity>bright</PatientTextureLuminosity>
  <IsoXValue>1.5</IsoXValue>
  <IsoYValue>abc</IsoYValue>
  <LatestApprovedSurfaceDateTimeStamp>2021-03-04 10:11:12</LatestApprovedSurfaceDateTimeStamp>
  <Unrelated>skip me</Unrelated>
  <Sites>
    <Site>
      <Description>Brain</Description>
      <Phases>
        <Phase>
          <Description>SRS</Description>
          <Fields/>
        </Phase>
      </Phases>
    </Site>
  </Sites>
</Patient>`

func TestParse_TypedValues(t *testing.T) {
	t.Parallel()

	tree, err := Parse(strings.NewReader(typedManifest), time.UTC)
	require.NoError(t, err)
	d := tree.Root().Details()

	notes, ok := d.String("Notes")
	assert.True(t, ok, "present but empty is kept")
	assert.Equal(t, "", notes)
	_, ok = d["MiddleName"]
	assert.False(t, ok, "absent tag stays absent")
	_, ok = d["Unrelated"]
	assert.False(t, ok, "unknown tag ignored")

	raw, ok := d.String("IsFromDicom")
	assert.True(t, ok)
	assert.Equal(t, "yes", raw)
	dyn, ok := d.Bool("IsDynamicBeamType")
	assert.True(t, ok)
	assert.False(t, dyn)

	plotter, ok := d.Int("LastUsedPlotterType")
	assert.True(t, ok)
	assert.Equal(t, int64(3), plotter)
	x, ok := d.Float("IsoXValue")
	assert.True(t, ok)
	assert.Equal(t, 1.5, x)
	ts, ok := d.Time("LatestApprovedSurfaceDateTimeStamp")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2021, 3, 4, 10, 11, 12, 0, time.UTC), ts)

	_, ok = d["IsoYValue"]
	assert.False(t, ok, "malformed value left absent")
	_, ok = d["PatientTextureLuminosity"]
	assert.False(t, ok)
	require.Len(t, tree.FieldErrors, 2)
	tags := []string{tree.FieldErrors[0].Tag, tree.FieldErrors[1].Tag}
	assert.ElementsMatch(t, []string{"IsoYValue", "PatientTextureLuminosity"}, tags)
	assert.Equal(t, KindPatient, tree.FieldErrors[0].Kind)

	assert.Equal(t, 3, tree.Depth(), "a phase without fields stops at depth 3")
}

func TestParse_FormatErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		xml  string
	}{
		{"invalid xml", "<Patient><Sites>"},
		{"wrong root", "<Site><Phases/></Site>"},
		{"no sites", "<Patient><PatientID>1</PatientID></Patient>"},
		{"site without phases", "<Patient><Sites><Site><Description>Chest</Description></Site></Sites></Patient>"},
		{"phase without fields", "<Patient><Sites><Site><Phases><Phase><Description>P</Description></Phase></Phases></Site></Sites></Patient>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse(strings.NewReader(tt.xml), nil)
			assert.Nil(t, tree)
			var mfe *ManifestFormatError
			assert.True(t, errors.As(err, &mfe), "want *ManifestFormatError, got %v", err)
		})
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("p/Patient Details.vpax", []byte(testutil.ChestManifest("1").XML()))
	fsys.WriteFile("q/Patient Details.vpax", []byte("<Patient/>"))

	tree, err := ParseFile(fsys, "p/Patient Details.vpax", 1<<20, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Depth())

	_, err = ParseFile(fsys, "q/Patient Details.vpax", 1<<20, nil)
	var mfe *ManifestFormatError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "q/Patient Details.vpax", mfe.Path)
}

func TestTree_Attach(t *testing.T) {
	t.Parallel()

	tree := parseChest(t)
	f1 := tree.Fields()[0]
	rec := &surface.Record{Dir: "210101 115500"}

	require.NoError(t, tree.Attach(f1.ID(), rec))
	assert.Equal(t, []*surface.Record{rec}, f1.Surfaces())
	got, ok := tree.FieldOf(rec)
	assert.True(t, ok)
	assert.Equal(t, f1.ID(), got.ID())

	assert.Error(t, tree.Attach(tree.Fields()[1].ID(), rec), "already attached")
	assert.Error(t, tree.Attach(tree.Root().ID(), &surface.Record{}), "not a field")

	tree.Seal()
	assert.True(t, tree.Sealed())
	assert.ErrorIs(t, tree.Attach(f1.ID(), &surface.Record{}), ErrSealed)

	_, ok = tree.FieldOf(&surface.Record{})
	assert.False(t, ok)
}

func TestDetails_Flatten(t *testing.T) {
	t.Parallel()

	d := Details{"Description": "Chest", "IsoXValue": 1.5}
	got := d.Flatten("Site Details - ")
	want := map[string]any{"Site Details - Description": "Chest", "Site Details - IsoXValue": 1.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Chest", d.Description())
	assert.Equal(t, "", Details{}.Description())
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Patient", KindPatient.String())
	assert.Equal(t, "Field", KindField.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
