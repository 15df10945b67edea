package mesh

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
)

const triangleOBJ = `# capture
ps 3
fs 1
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
vn 0 0 1
vn 0 0 1
f 1//1 2//2 3//3
`

func TestDecode_Triangle(t *testing.T) {
	t.Parallel()

	m, err := Decode(strings.NewReader(triangleOBJ))
	require.NoError(t, err)

	assert.Len(t, m.Vertices, 3)
	assert.Len(t, m.Normals, 3)
	assert.Equal(t, [][3]int{{0, 1, 2}}, m.Faces)
	assert.Equal(t, [3]float64{1, 0, 0}, m.Vertices[1])
}

func TestDecode_PlainFaceIndices(t *testing.T) {
	t.Parallel()

	src := "ps 3\nfs 1\nv 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nvn 0 0 1\nvn 0 0 1\nf 3 2 1\n"
	m, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 1, 0}, m.Faces[0])
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"missing counts", "v 0 0 0\n"},
		{"missing fs", "ps 1\nv 0 0 0\nvn 0 0 1\n"},
		{"bad count", "ps x\nfs 0\n"},
		{"too few vertices", "ps 2\nfs 0\nv 0 0 0\nvn 0 0 1\nvn 0 0 1\n"},
		{"too many vertices", "ps 1\nfs 0\nv 0 0 0\nv 1 1 1\nvn 0 0 1\n"},
		{"missing normals", "ps 1\nfs 0\nv 0 0 0\n"},
		{"face out of range", "ps 1\nfs 1\nv 0 0 0\nvn 0 0 1\nf 1 2 1\n"},
		{"zero index", "ps 1\nfs 1\nv 0 0 0\nvn 0 0 1\nf 0 1 1\n"},
		{"quad face", "ps 1\nfs 1\nv 0 0 0\nvn 0 0 1\nf 1 1 1 1\n"},
		{"bad vertex", "ps 1\nfs 0\nv 0 zero 0\nvn 0 0 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			require.Error(t, err)
			var mde *MeshDecodeError
			assert.True(t, errors.As(err, &mde), "want *MeshDecodeError, got %T", err)
		})
	}
}

func TestLoadTransform(t *testing.T) {
	t.Parallel()

	src := "1\t0\t0\t10\n0 1 0 20\n\n0 0 1 30\n0 0 0 1\n"
	tr, err := LoadTransform(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 10.0, tr[3])
	assert.Equal(t, 20.0, tr[7])
	assert.Equal(t, 30.0, tr[11])
	assert.True(t, tr.IsRigid())

	_, err = LoadTransform(strings.NewReader("1 0 0\n"))
	assert.Error(t, err)
	_, err = LoadTransform(strings.NewReader("1 0 0 0\n0 1 0 0\n0 0 1 0\n"))
	assert.Error(t, err)
}

func TestApply_IdentityLeavesVerticesUnchanged(t *testing.T) {
	t.Parallel()

	m, err := Decode(strings.NewReader(triangleOBJ))
	require.NoError(t, err)

	out, err := Identity().Apply(m)
	require.NoError(t, err)
	assert.Equal(t, m.Vertices, out.Vertices)
	assert.Equal(t, m.Faces, out.Faces)
	assert.Len(t, out.Normals, len(out.Vertices))
}

func TestApply_TranslationAndRotation(t *testing.T) {
	t.Parallel()

	m, err := Decode(strings.NewReader(triangleOBJ))
	require.NoError(t, err)

	// 90 degrees about Z, then translate by (10, 0, -5).
	tr := Transform{
		0, -1, 0, 10,
		1, 0, 0, 0,
		0, 0, 1, -5,
		0, 0, 0, 1,
	}
	require.True(t, tr.IsRigid())

	out, err := tr.Apply(m)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10, 0, -5}, out.Vertices[0][:], 1e-12)
	assert.InDeltaSlice(t, []float64{10, 1, -5}, out.Vertices[1][:], 1e-12)
	assert.InDeltaSlice(t, []float64{9, 0, -5}, out.Vertices[2][:], 1e-12)

	// Winding is preserved so the normal still points along +Z.
	for _, n := range out.Normals {
		assert.InDeltaSlice(t, []float64{0, 0, 1}, n[:], 1e-12)
	}

	// The input mesh is not modified.
	assert.Equal(t, [3]float64{1, 0, 0}, m.Vertices[1])
}

func TestApply_NonRigidStillApplied(t *testing.T) {
	t.Parallel()

	m, err := Decode(strings.NewReader(triangleOBJ))
	require.NoError(t, err)

	scale := Transform{
		2, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 2, 0,
		0, 0, 0, 1,
	}
	assert.False(t, scale.IsRigid())

	out, err := scale.Apply(m)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{2, 0, 0}, out.Vertices[1])
}

func TestApply_RejectsProjectiveRow(t *testing.T) {
	t.Parallel()

	tr := Identity()
	tr[12] = 1
	_, err := tr.Apply(&Mesh{})
	assert.Error(t, err)
}

func TestVertexNormals(t *testing.T) {
	t.Parallel()

	verts := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}}
	normals := VertexNormals(verts, [][3]int{{0, 1, 2}})
	require.Len(t, normals, 4)
	assert.Equal(t, [3]float64{0, 0, 1}, normals[0])
	assert.Equal(t, [3]float64{0, 0, 0}, normals[3], "unreferenced vertex")

	// Two faces folded at 90 degrees average to a 45 degree normal on the shared edge.
	verts = [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	normals = VertexNormals(verts, [][3]int{{0, 1, 2}, {0, 3, 1}})
	inv := 1 / math.Sqrt2
	assert.InDeltaSlice(t, []float64{0, inv, inv}, normals[0][:], 1e-12)
}

func TestDecodeFiles(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("cap/capture.obj", []byte(triangleOBJ))
	fsys.WriteFile("cap/VRTToIsoTransformation.tfm", []byte("1 0 0 1\n0 1 0 2\n0 0 1 3\n0 0 0 1\n"))

	m, err := DecodeFiles(fsys, "cap/capture.obj", "cap/VRTToIsoTransformation.tfm", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, 3}, m.Vertices[0])

	fsys.WriteFile("bad/capture.obj", []byte("ps 2\nfs 0\n"))
	fsys.WriteFile("bad/VRTToIsoTransformation.tfm", []byte("1 0 0 0\n0 1 0 0\n0 0 1 0\n0 0 0 1\n"))
	_, err = DecodeFiles(fsys, "bad/capture.obj", "bad/VRTToIsoTransformation.tfm", 1<<20)
	var mde *MeshDecodeError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, "bad/capture.obj", mde.Path)

	_, err = DecodeFiles(fsys, "missing/capture.obj", "missing/x.tfm", 1<<20)
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, "missing/capture.obj", mde.Path)
}
