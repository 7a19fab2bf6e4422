package artifact

import (
	"bufio"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// SaveMatrix writes m in gonum's binary matrix format.
func SaveMatrix(path string, m *mat.Dense) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriter(f)
	if _, err := m.MarshalBinaryTo(w); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encode matrix %s", path)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "flush %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// LoadMatrix reads a matrix written by SaveMatrix.
func LoadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.Wrapf(err, "decode matrix %s", path)
	}
	return &m, nil
}

// SplitXY separates a combined matrix into its features and the target in
// the last column.
func SplitXY(m *mat.Dense) (X, y *mat.Dense, err error) {
	r, c := m.Dims()
	if c < 2 {
		return nil, nil, errors.NewDimensionError("SplitXY", 2, c, 1)
	}
	X = mat.DenseCopyOf(m.Slice(0, r, 0, c-1))
	y = mat.DenseCopyOf(m.Slice(0, r, c-1, c))
	return X, y, nil
}
