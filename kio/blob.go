package kio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/sfmkit/kapture-go/kapture"
)

// Binary array files hold the raw elements of an (N, dsize) matrix in row
// major order, little endian, with no header. The row count is implicit in
// the file size; an image with nothing detected gets an empty file.

// WriteMatrix writes a dense matrix as a binary array file. A nil matrix
// stands for zero rows and produces an empty file.
func WriteMatrix(path string, dtype kapture.DType, m *tensor.Dense) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	if m == nil {
		return errors.Wrapf(os.WriteFile(path, nil, 0o644), "writing %s", path)
	}
	got, err := kapture.DTypeOf(m.Dtype())
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if got != dtype {
		return errors.Errorf("writing %s: matrix holds %s elements, collection wants %s", path, string(got), string(dtype))
	}
	buf, err := matrixBytes(m)
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, buf, 0o644), "writing %s", path)
}

// ReadMatrix reads a binary array file into a dense matrix with the given
// row width. An empty file stands for zero rows and returns a nil matrix.
func ReadMatrix(path string, dtype kapture.DType, cols int) (*tensor.Dense, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	rowBytes := cols * dtype.Size()
	if rowBytes == 0 {
		return nil, errors.Errorf("reading %s: invalid shape %s x%d", path, string(dtype), cols)
	}
	if len(data)%rowBytes != 0 {
		return nil, errors.Errorf("reading %s: %d bytes is not a whole number of %s x%d rows", path, len(data), string(dtype), cols)
	}
	rows := len(data) / rowBytes
	backing, err := elementsOf(data, dtype)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing)), nil
}

// matrixBytes flattens a matrix's backing into little-endian element bytes.
func matrixBytes(m *tensor.Dense) ([]byte, error) {
	switch data := m.Data().(type) {
	case []float32:
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		return buf, nil
	case float32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(data))
		return buf, nil
	case []float64:
		buf := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		return buf, nil
	case float64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(data))
		return buf, nil
	case []uint8:
		return append([]byte(nil), data...), nil
	case uint8:
		return []byte{data}, nil
	case []uint32:
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
		return buf, nil
	case uint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, data)
		return buf, nil
	case []int32:
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
		return buf, nil
	case int32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(data))
		return buf, nil
	case []int64:
		buf := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
		}
		return buf, nil
	case int64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(data))
		return buf, nil
	default:
		return nil, errors.Errorf("dont know how to serialize a matrix of %T", data)
	}
}

// elementsOf decodes little-endian bytes into the typed backing slice for a
// dtype.
func elementsOf(data []byte, dtype kapture.DType) (interface{}, error) {
	switch dtype {
	case kapture.Float32:
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case kapture.Float64:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	case kapture.Uint8:
		return append([]byte(nil), data...), nil
	case kapture.Uint32:
		out := make([]uint32, len(data)/4)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return out, nil
	case kapture.Int32:
		out := make([]int32, len(data)/4)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case kapture.Int64:
		out := make([]int64, len(data)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, errors.Errorf("unknown dtype %q", string(dtype))
	}
}
