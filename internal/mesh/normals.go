package mesh

import "math"

// VertexNormals computes unit vertex normals as the normalised sum of the
// area-weighted normals of every face sharing the vertex. Vertices not
// referenced by any face get a zero normal.
func VertexNormals(vertices [][3]float64, faces [][3]int) [][3]float64 {
	normals := make([][3]float64, len(vertices))
	for _, f := range faces {
		a, b, c := vertices[f[0]], vertices[f[1]], vertices[f[2]]
		n := cross(sub(b, a), sub(c, a))
		for _, idx := range f {
			normals[idx][0] += n[0]
			normals[idx][1] += n[1]
			normals[idx][2] += n[2]
		}
	}
	for i, n := range normals {
		length := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if length > 0 {
			normals[i] = [3]float64{n[0] / length, n[1] / length, n[2] / length}
		}
	}
	return normals
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
