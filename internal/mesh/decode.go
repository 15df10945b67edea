// Package mesh decodes the device's line-oriented capture geometry files
// and applies the capture's 4x4 transform to produce a usable mesh.
package mesh

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Mesh is a triangle mesh. It is immutable once returned by a decoder.
type Mesh struct {
	Vertices [][3]float64
	Normals  [][3]float64
	Faces    [][3]int // 0-based vertex indices
}

// Decode reads a geometry file in two passes. The first pass finds the
// "ps" (vertex count) and "fs" (face count) directives to size the
// output; the second fills "v", "vn" and "f" records. Face indices are
// converted from 1-based to 0-based. The filled counts must equal the
// declared counts.
func Decode(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &MeshDecodeError{Reason: "read failed", Err: err}
	}

	nVerts, nFaces, err := scanCounts(data)
	if err != nil {
		return nil, err
	}

	m := &Mesh{
		Vertices: make([][3]float64, 0, nVerts),
		Normals:  make([][3]float64, 0, nVerts),
		Faces:    make([][3]int, 0, nFaces),
	}

	sc := newLineScanner(data)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &MeshDecodeError{Line: lineNo, Reason: "bad vertex", Err: err}
			}
			if len(m.Vertices) == nVerts {
				return nil, &MeshDecodeError{Line: lineNo, Reason: fmt.Sprintf("more than %d declared vertices", nVerts)}
			}
			m.Vertices = append(m.Vertices, v)
		case "vn":
			n, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &MeshDecodeError{Line: lineNo, Reason: "bad vertex normal", Err: err}
			}
			if len(m.Normals) == nVerts {
				return nil, &MeshDecodeError{Line: lineNo, Reason: fmt.Sprintf("more than %d declared normals", nVerts)}
			}
			m.Normals = append(m.Normals, n)
		case "f":
			f, err := parseFace(fields[1:], nVerts)
			if err != nil {
				return nil, &MeshDecodeError{Line: lineNo, Reason: "bad face", Err: err}
			}
			if len(m.Faces) == nFaces {
				return nil, &MeshDecodeError{Line: lineNo, Reason: fmt.Sprintf("more than %d declared faces", nFaces)}
			}
			m.Faces = append(m.Faces, f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &MeshDecodeError{Reason: "scan failed", Err: err}
	}

	if len(m.Vertices) != nVerts || len(m.Normals) != nVerts || len(m.Faces) != nFaces {
		return nil, &MeshDecodeError{Reason: fmt.Sprintf(
			"count mismatch: declared %d vertices/%d faces, filled %d vertices, %d normals, %d faces",
			nVerts, nFaces, len(m.Vertices), len(m.Normals), len(m.Faces))}
	}

	tracef("decoded mesh: %d vertices, %d faces", nVerts, nFaces)
	return m, nil
}

// scanCounts is the first pass: it locates the ps/fs directives.
func scanCounts(data []byte) (nVerts, nFaces int, err error) {
	nVerts, nFaces = -1, -1
	sc := newLineScanner(data)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || (fields[0] != "ps" && fields[0] != "fs") {
			continue
		}
		n, convErr := strconv.Atoi(fields[1])
		if convErr != nil || n < 0 {
			return 0, 0, &MeshDecodeError{Line: lineNo, Reason: fmt.Sprintf("bad %s count %q", fields[0], fields[1]), Err: convErr}
		}
		if fields[0] == "ps" {
			nVerts = n
		} else {
			nFaces = n
		}
		if nVerts >= 0 && nFaces >= 0 {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, &MeshDecodeError{Reason: "scan failed", Err: err}
	}
	if nVerts < 0 || nFaces < 0 {
		return 0, 0, &MeshDecodeError{Reason: "missing ps/fs count directives"}
	}
	return nVerts, nFaces, nil
}

func newLineScanner(data []byte) *bufio.Scanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return sc
}

func parseVec3(fields []string) ([3]float64, error) {
	var v [3]float64
	if len(fields) < 3 {
		return v, fmt.Errorf("expected 3 components, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

// parseFace parses "a b c" or "a//n b//n c//n" tokens into 0-based indices.
func parseFace(fields []string, nVerts int) ([3]int, error) {
	var f [3]int
	if len(fields) != 3 {
		return f, fmt.Errorf("expected a triangle, got %d indices", len(fields))
	}
	for i, tok := range fields {
		if slash := strings.IndexByte(tok, '/'); slash >= 0 {
			tok = tok[:slash]
		}
		idx, err := strconv.Atoi(tok)
		if err != nil {
			return f, err
		}
		idx--
		if idx < 0 || idx >= nVerts {
			return f, fmt.Errorf("index %d out of range [1,%d]", idx+1, nVerts)
		}
		f[i] = idx
	}
	return f, nil
}
