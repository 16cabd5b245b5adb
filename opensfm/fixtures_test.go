package opensfm

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

// encodeNpy renders one array in numpy's .npy container format, version 1.0.
func encodeNpy(t *testing.T, descr string, rows, cols int, data interface{}) []byte {
	t.Helper()
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d), }", descr, rows, cols)
	prefix := 6 + 2 + 2
	pad := (64 - (prefix+len(header)+1)%64) % 64
	header += strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)
	test.That(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))), test.ShouldBeNil)
	buf.WriteString(header)
	test.That(t, binary.Write(&buf, binary.LittleEndian, data), test.ShouldBeNil)
	return buf.Bytes()
}

// writeFeaturesNpz writes a feature archive holding a points and a
// descriptors array.
func writeFeaturesNpz(t *testing.T, path string,
	pointsDescr string, pRows, pCols int, points interface{},
	descDescr string, dRows, dCols int, descriptors interface{},
) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{"points.npy", encodeNpy(t, pointsDescr, pRows, pCols, points)},
		{"descriptors.npy", encodeNpy(t, descDescr, dRows, dCols, descriptors)},
	} {
		w, err := zw.Create(entry.name)
		test.That(t, err, test.ShouldBeNil)
		_, err = w.Write(entry.data)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, zw.Close(), test.ShouldBeNil)
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, buf.Bytes(), 0o644), test.ShouldBeNil)
}

// pickleWriter emits just enough of pickle protocol 2 to express a numpy
// match table the way OpenSfM writes one.
type pickleWriter struct {
	buf bytes.Buffer
}

func (p *pickleWriter) proto()     { p.buf.WriteString("\x80\x02") }
func (p *pickleWriter) stop()      { p.buf.WriteByte('.') }
func (p *pickleWriter) emptyDict() { p.buf.WriteByte('}') }
func (p *pickleWriter) mark()      { p.buf.WriteByte('(') }
func (p *pickleWriter) setItems()  { p.buf.WriteByte('u') }
func (p *pickleWriter) tuple()     { p.buf.WriteByte('t') }
func (p *pickleWriter) reduce()    { p.buf.WriteByte('R') }
func (p *pickleWriter) build()     { p.buf.WriteByte('b') }
func (p *pickleWriter) none()      { p.buf.WriteByte('N') }

func (p *pickleWriter) newBool(v bool) {
	if v {
		p.buf.WriteByte('\x88')
	} else {
		p.buf.WriteByte('\x89')
	}
}

func (p *pickleWriter) global(module, name string) {
	p.buf.WriteByte('c')
	p.buf.WriteString(module + "\n" + name + "\n")
}

func (p *pickleWriter) binint(v int) {
	p.buf.WriteByte('J')
	var quad [4]byte
	binary.LittleEndian.PutUint32(quad[:], uint32(int32(v)))
	p.buf.Write(quad[:])
}

func (p *pickleWriter) binunicode(s string) {
	p.buf.WriteByte('X')
	var quad [4]byte
	binary.LittleEndian.PutUint32(quad[:], uint32(len(s)))
	p.buf.Write(quad[:])
	p.buf.WriteString(s)
}

func (p *pickleWriter) binbytes(b []byte) {
	p.buf.WriteByte('B')
	var quad [4]byte
	binary.LittleEndian.PutUint32(quad[:], uint32(len(b)))
	p.buf.Write(quad[:])
	p.buf.Write(b)
}

func (p *pickleWriter) dtype(kind, order string) {
	p.global("numpy", "dtype")
	p.mark()
	p.binunicode(kind)
	p.binint(0)
	p.binint(1)
	p.tuple()
	p.reduce()
	p.mark()
	p.binint(3)
	p.binunicode(order)
	p.none()
	p.none()
	p.none()
	p.binint(-1)
	p.binint(-1)
	p.binint(0)
	p.tuple()
	p.build()
}

// ndarrayInt64 emits a little-endian (rows, cols) int64 ndarray.
func (p *pickleWriter) ndarrayInt64(rows, cols int, vals []int64) {
	p.global("numpy.core.multiarray", "_reconstruct")
	p.mark()
	p.global("numpy", "ndarray")
	p.mark()
	p.binint(0)
	p.tuple()
	p.binbytes([]byte{'b'})
	p.tuple()
	p.reduce()

	p.mark()
	p.binint(1)
	p.mark()
	p.binint(rows)
	p.binint(cols)
	p.tuple()
	p.dtype("i8", "<")
	p.newBool(false)
	data := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		var oct [8]byte
		binary.LittleEndian.PutUint64(oct[:], uint64(v))
		data = append(data, oct[:]...)
	}
	p.binbytes(data)
	p.tuple()
	p.build()
}

// pickledMatchEntry is one candidate image and its keypoint index pairs.
type pickledMatchEntry struct {
	image string
	rows  [][2]int64
}

// writeMatchesPickle writes a gzipped pickle of {image: (N, 2) int64 array}.
func writeMatchesPickle(t *testing.T, path string, entries []pickledMatchEntry) {
	t.Helper()
	p := &pickleWriter{}
	p.proto()
	p.emptyDict()
	p.mark()
	for _, entry := range entries {
		p.binunicode(entry.image)
		vals := make([]int64, 0, len(entry.rows)*2)
		for _, row := range entry.rows {
			vals = append(vals, row[0], row[1])
		}
		p.ndarrayInt64(len(entry.rows), 2, vals)
	}
	p.setItems()
	p.stop()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(p.buf.Bytes())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gz.Close(), test.ShouldBeNil)
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, buf.Bytes(), 0o644), test.ShouldBeNil)
}

// writeTestFile writes a text file, creating parent directories.
func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
}
