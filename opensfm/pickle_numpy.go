package opensfm

import (
	"encoding/binary"
	"math"

	"github.com/nlpodyssey/gopickle/types"
	"github.com/pkg/errors"

	"github.com/sfmkit/kapture-go/kapture"
)

// findNumpyClass resolves the handful of numpy globals a pickled match table
// references, so the unpickler can rebuild ndarrays without a numpy runtime.
func findNumpyClass(module, name string) (interface{}, error) {
	switch {
	case name == "_reconstruct" && (module == "numpy.core.multiarray" || module == "numpy._core.multiarray"):
		return &npArrayReconstructor{}, nil
	case name == "ndarray" && module == "numpy":
		return npArrayType{}, nil
	case name == "dtype" && module == "numpy":
		return &npDtypeFactory{}, nil
	case name == "encode" && module == "_codecs":
		return &codecsEncode{}, nil
	}
	return nil, errors.Errorf("pickle references unsupported class %s.%s", module, name)
}

// npArrayType stands in for the numpy.ndarray class object. It is only ever
// passed as the subtype argument of _reconstruct.
type npArrayType struct{}

// npArrayReconstructor mimics numpy.core.multiarray._reconstruct: it returns
// an empty array whose contents arrive later through __setstate__.
type npArrayReconstructor struct{}

// Call ignores its (subtype, shape, typestr) arguments.
func (r *npArrayReconstructor) Call(...interface{}) (interface{}, error) {
	return &npArray{}, nil
}

// npDtypeFactory mimics the numpy.dtype constructor.
type npDtypeFactory struct{}

// Call takes (kind, align, copy) and keeps the kind string, e.g. "i8".
func (f *npDtypeFactory) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("numpy.dtype constructed without arguments")
	}
	kind, ok := args[0].(string)
	if !ok {
		return nil, errors.Errorf("numpy.dtype constructed from %T, want string", args[0])
	}
	return &npDtype{kind: kind}, nil
}

// npDtype is a reconstructed numpy dtype: the kind from the constructor and
// the byte order from the pickled state.
type npDtype struct {
	kind  string
	order string
}

// PySetState takes the dtype state tuple; index 1 holds the byte order
// character.
func (d *npDtype) PySetState(state interface{}) error {
	t, ok := state.(*types.Tuple)
	if !ok || t.Len() < 2 {
		return errors.Errorf("malformed numpy.dtype state %T", state)
	}
	order, ok := t.Get(1).(string)
	if !ok {
		return errors.Errorf("malformed numpy.dtype byte order %T", t.Get(1))
	}
	d.order = order
	return nil
}

// descr renders the dtype back into descriptor form, e.g. "<i8".
func (d *npDtype) descr() string {
	order := d.order
	if order == "" {
		order = "|"
	}
	return order + d.kind
}

// codecsEncode mimics _codecs.encode, which protocol 2 pickles use to smuggle
// byte strings through unicode.
type codecsEncode struct{}

// Call re-encodes a latin-1 smuggled string back into raw bytes.
func (c *codecsEncode) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 1 {
		return nil, errors.New("_codecs.encode without arguments")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, errors.Errorf("_codecs.encode of %T, want string", args[0])
	}
	if len(args) > 1 {
		if codec, ok := args[1].(string); ok && codec != "latin1" && codec != "latin-1" {
			return nil, errors.Errorf("_codecs.encode with codec %q", codec)
		}
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, errors.Errorf("rune %q is not latin-1", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

// npArray is a reconstructed numpy ndarray: shape, dtype and the raw C-order
// buffer.
type npArray struct {
	shape []int
	dtype *npDtype
	data  []byte
}

// PySetState takes the ndarray state tuple
// (version, shape, dtype, fortran, data).
func (a *npArray) PySetState(state interface{}) error {
	t, ok := state.(*types.Tuple)
	if !ok || t.Len() != 5 {
		return errors.Errorf("malformed ndarray state %T", state)
	}
	shapeTuple, ok := t.Get(1).(*types.Tuple)
	if !ok {
		return errors.Errorf("malformed ndarray shape %T", t.Get(1))
	}
	shape := make([]int, 0, shapeTuple.Len())
	for i := 0; i < shapeTuple.Len(); i++ {
		dim, err := pickledInt(shapeTuple.Get(i))
		if err != nil {
			return errors.Wrap(err, "ndarray shape")
		}
		shape = append(shape, dim)
	}
	dtype, ok := t.Get(2).(*npDtype)
	if !ok {
		return errors.Errorf("malformed ndarray dtype %T", t.Get(2))
	}
	fortran, ok := t.Get(3).(bool)
	if !ok {
		return errors.Errorf("malformed ndarray order flag %T", t.Get(3))
	}
	if fortran {
		return errors.New("ndarray is in Fortran order")
	}
	var data []byte
	switch raw := t.Get(4).(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return errors.Errorf("malformed ndarray buffer %T", raw)
	}
	a.shape = shape
	a.dtype = dtype
	a.data = data
	return nil
}

// Dims returns the array's dimensions, which must be two.
func (a *npArray) Dims() (rows, cols int, err error) {
	if len(a.shape) != 2 {
		return 0, 0, errors.Errorf("array has %d dimensions, want 2", len(a.shape))
	}
	return a.shape[0], a.shape[1], nil
}

// Float64s decodes the buffer into float64 values in row-major order,
// widening smaller numeric types.
func (a *npArray) Float64s() ([]float64, error) {
	if a.dtype == nil {
		return nil, errors.New("array has no dtype")
	}
	dtype, err := dtypeFromDescr(a.dtype.descr())
	if err != nil {
		return nil, err
	}
	size := dtype.Size()
	if len(a.data)%size != 0 {
		return nil, errors.Errorf("buffer of %d bytes is not a whole number of %s values", len(a.data), dtype)
	}
	n := len(a.data) / size
	want := 1
	for _, dim := range a.shape {
		want *= dim
	}
	if n != want {
		return nil, errors.Errorf("buffer holds %d values, shape wants %d", n, want)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := a.data[i*size:]
		switch dtype {
		case kapture.Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case kapture.Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case kapture.Uint8:
			out[i] = float64(chunk[0])
		case kapture.Uint32:
			out[i] = float64(binary.LittleEndian.Uint32(chunk))
		case kapture.Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(chunk)))
		case kapture.Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(chunk)))
		default:
			return nil, errors.Errorf("cannot widen dtype %s", dtype)
		}
	}
	return out, nil
}

// pickledInt widens the integer types the unpickler may produce.
func pickledInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	}
	return 0, errors.Errorf("unexpected integer type %T", v)
}
