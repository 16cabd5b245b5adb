package opensfm

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio/npz"
	"go.viam.com/utils"
	"gorgonia.org/tensor"

	"github.com/sfmkit/kapture-go/kapture"
)

// featuresSuffix marks OpenSfM feature archives under features/.
const featuresSuffix = ".features.npz"

// featureMatrix is one dense array read out of a feature archive. Data is nil
// when the array has no rows; the dtype and column count still describe it.
type featureMatrix struct {
	DType kapture.DType
	Rows  int
	Cols  int
	Data  *tensor.Dense
}

// readFeaturesFile reads the keypoint and descriptor arrays of one image's
// feature archive.
func readFeaturesFile(path string) (points, descriptors *featureMatrix, err error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening feature archive")
	}
	defer utils.UncheckedErrorFunc(r.Close)
	points, err = readNpzArray(r, "points")
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s", path)
	}
	descriptors, err = readNpzArray(r, "descriptors")
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s", path)
	}
	return points, descriptors, nil
}

func readNpzArray(r *npz.Reader, name string) (*featureMatrix, error) {
	key, ok := findNpzKey(r.Keys(), name)
	if !ok {
		return nil, errors.Errorf("archive has no %q array", name)
	}
	h := r.Header(key)
	if h.Descr.Fortran {
		return nil, errors.Errorf("array %q is in Fortran order", name)
	}
	if len(h.Descr.Shape) != 2 {
		return nil, errors.Errorf("array %q has %d dimensions, want 2", name, len(h.Descr.Shape))
	}
	dtype, err := dtypeFromDescr(h.Descr.Type)
	if err != nil {
		return nil, errors.Wrapf(err, "array %q", name)
	}
	rows, cols := h.Descr.Shape[0], h.Descr.Shape[1]
	m := &featureMatrix{DType: dtype, Rows: rows, Cols: cols}
	if rows == 0 {
		return m, nil
	}

	var backing interface{}
	switch dtype {
	case kapture.Float32:
		var data []float32
		err = r.Read(key, &data)
		backing = data
	case kapture.Float64:
		var data []float64
		err = r.Read(key, &data)
		backing = data
	case kapture.Uint8:
		var data []uint8
		err = r.Read(key, &data)
		backing = data
	case kapture.Uint32:
		var data []uint32
		err = r.Read(key, &data)
		backing = data
	case kapture.Int32:
		var data []int32
		err = r.Read(key, &data)
		backing = data
	case kapture.Int64:
		var data []int64
		err = r.Read(key, &data)
		backing = data
	default:
		return nil, errors.Errorf("array %q has unsupported dtype %s", name, dtype)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading array %q", name)
	}
	m.Data = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	return m, nil
}

// findNpzKey resolves an array name against the archive's entries, which may
// or may not carry the .npy suffix numpy gives them.
func findNpzKey(keys []string, name string) (string, bool) {
	for _, key := range keys {
		if key == name || strings.TrimSuffix(key, ".npy") == name {
			return key, true
		}
	}
	return "", false
}

// dtypeFromDescr translates a numpy dtype descriptor like "<f8" into a
// kapture dtype. Big-endian data is rejected.
func dtypeFromDescr(descr string) (kapture.DType, error) {
	if strings.HasPrefix(descr, ">") {
		return "", errors.Errorf("big-endian dtype %q is not supported", descr)
	}
	kind := strings.TrimLeft(descr, "<=|")
	switch kind {
	case "f4":
		return kapture.Float32, nil
	case "f8":
		return kapture.Float64, nil
	case "u1", "b1":
		return kapture.Uint8, nil
	case "u4":
		return kapture.Uint32, nil
	case "i4":
		return kapture.Int32, nil
	case "i8":
		return kapture.Int64, nil
	}
	return "", errors.Errorf("unsupported dtype %q", descr)
}
