package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance is the tolerance used when checking whether a
// transform is a proper rigid transform.
const MatrixValidationTolerance = 0.01

// Transform is a 4x4 homogeneous transform in row-major order:
// m00,m01,m02,m03, m10,...
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// LoadTransform reads a whitespace or tab delimited 4x4 matrix, one row
// per line. Blank lines are skipped.
func LoadTransform(r io.Reader) (Transform, error) {
	var t Transform
	row := 0
	lineNo := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if row == 4 {
			return t, &MeshDecodeError{Line: lineNo, Reason: "transform has more than 4 rows"}
		}
		if len(fields) != 4 {
			return t, &MeshDecodeError{Line: lineNo, Reason: fmt.Sprintf("transform row has %d columns, want 4", len(fields))}
		}
		for col, tok := range fields {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return t, &MeshDecodeError{Line: lineNo, Reason: "bad transform value", Err: err}
			}
			t[row*4+col] = v
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return t, &MeshDecodeError{Reason: "scan failed", Err: err}
	}
	if row != 4 {
		return t, &MeshDecodeError{Reason: fmt.Sprintf("transform has %d rows, want 4", row)}
	}
	return t, nil
}

// IsRigid checks if the matrix is a proper rigid transform: the rotation
// block has determinant ≈ 1 and the last row is [0 0 0 1].
func (t Transform) IsRigid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}
	return t.isAffine()
}

func (t Transform) isAffine() bool {
	return t[12] == 0 && t[13] == 0 && t[14] == 0 && math.Abs(t[15]-1.0) <= 0.001
}

// Apply returns a new mesh with every vertex transformed homogeneously
// and normals recomputed from the transformed faces. Normals are not
// transformed directly because they do not survive non-uniform scaling.
func (t Transform) Apply(m *Mesh) (*Mesh, error) {
	if !t.isAffine() {
		return nil, &MeshDecodeError{Reason: "transform last row is not [0 0 0 1]"}
	}
	if !t.IsRigid() {
		diagf("applying non-rigid transform (rotation determinant differs from 1)")
	}

	n := len(m.Vertices)
	out := &Mesh{
		Vertices: make([][3]float64, n),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if n > 0 {
		homog := mat.NewDense(4, n, nil)
		for i, v := range m.Vertices {
			homog.Set(0, i, v[0])
			homog.Set(1, i, v[1])
			homog.Set(2, i, v[2])
			homog.Set(3, i, 1)
		}

		var world mat.Dense
		world.Mul(mat.NewDense(4, 4, t[:]), homog)

		for i := range out.Vertices {
			w := world.At(3, i)
			out.Vertices[i] = [3]float64{world.At(0, i) / w, world.At(1, i) / w, world.At(2, i) / w}
		}
	}
	out.Normals = VertexNormals(out.Vertices, out.Faces)
	return out, nil
}

// DecodeWithTransform decodes a mesh and applies the transform read from tr.
func DecodeWithTransform(geometry, tr io.Reader) (*Mesh, error) {
	raw, err := Decode(geometry)
	if err != nil {
		return nil, err
	}
	t, err := LoadTransform(tr)
	if err != nil {
		return nil, err
	}
	return t.Apply(raw)
}
