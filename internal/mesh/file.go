package mesh

import (
	"bytes"
	"errors"

	"github.com/banshee-data/sgrt.report/internal/fsutil"
)

// DecodeFiles decodes the geometry at objPath and applies the transform at
// tfmPath. Reads are bounded by maxBytes. Errors carry the offending path.
func DecodeFiles(fsys fsutil.FileSystem, objPath, tfmPath string, maxBytes int64) (*Mesh, error) {
	obj, err := fsutil.ReadFileMax(fsys, objPath, maxBytes)
	if err != nil {
		return nil, &MeshDecodeError{Path: objPath, Reason: "read failed", Err: err}
	}
	raw, err := Decode(bytes.NewReader(obj))
	if err != nil {
		return nil, withPath(err, objPath)
	}

	tfm, err := fsutil.ReadFileMax(fsys, tfmPath, maxBytes)
	if err != nil {
		return nil, &MeshDecodeError{Path: tfmPath, Reason: "read failed", Err: err}
	}
	t, err := LoadTransform(bytes.NewReader(tfm))
	if err != nil {
		return nil, withPath(err, tfmPath)
	}

	m, err := t.Apply(raw)
	if err != nil {
		return nil, withPath(err, tfmPath)
	}
	diagf("decoded %s: %d vertices, %d faces", objPath, len(m.Vertices), len(m.Faces))
	return m, nil
}

func withPath(err error, path string) error {
	var mde *MeshDecodeError
	if errors.As(err, &mde) && mde.Path == "" {
		mde.Path = path
	}
	return err
}
