package kapture

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DType names the element type of a binary feature array, matching the dtype
// column of the keypoints/descriptors description files.
type DType string

// The element types a dataset can carry.
const (
	Float32 DType = "float32"
	Float64 DType = "float64"
	Uint8   DType = "uint8"
	Uint32  DType = "uint32"
	Int32   DType = "int32"
	Int64   DType = "int64"
)

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Float32, Uint32, Int32:
		return 4
	case Float64, Int64:
		return 8
	}
	return 0
}

// TensorType returns the dense tensor element type backing this dtype.
func (d DType) TensorType() (tensor.Dtype, error) {
	switch d {
	case Float32:
		return tensor.Float32, nil
	case Float64:
		return tensor.Float64, nil
	case Uint8:
		return tensor.Uint8, nil
	case Uint32:
		return tensor.Uint32, nil
	case Int32:
		return tensor.Int32, nil
	case Int64:
		return tensor.Int64, nil
	}
	return tensor.Dtype{}, errors.Errorf("no tensor type for dtype %q", string(d))
}

// DTypeOf maps a dense tensor element type back to its dtype name.
func DTypeOf(dt tensor.Dtype) (DType, error) {
	switch dt {
	case tensor.Float32:
		return Float32, nil
	case tensor.Float64:
		return Float64, nil
	case tensor.Uint8:
		return Uint8, nil
	case tensor.Uint32:
		return Uint32, nil
	case tensor.Int32:
		return Int32, nil
	case tensor.Int64:
		return Int64, nil
	}
	return "", errors.Errorf("unsupported tensor type %v", dt)
}

// ParseDType parses a dtype column value.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if d.Size() == 0 {
		return "", errors.Errorf("unknown dtype %q", s)
	}
	return d, nil
}
