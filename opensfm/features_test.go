package opensfm

import (
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/sfmkit/kapture-go/kapture"
)

func TestReadFeaturesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg.features.npz")
	writeFeaturesNpz(t, path,
		"<f8", 2, 4, []float64{1, 2, 3, 4, 5, 6, 7, 8},
		"|u1", 2, 3, []uint8{10, 20, 30, 40, 50, 60})

	points, descriptors, err := readFeaturesFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points.DType, test.ShouldEqual, kapture.Float64)
	test.That(t, points.Rows, test.ShouldEqual, 2)
	test.That(t, points.Cols, test.ShouldEqual, 4)
	test.That(t, points.Data.Data(), test.ShouldResemble, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	test.That(t, descriptors.DType, test.ShouldEqual, kapture.Uint8)
	test.That(t, descriptors.Cols, test.ShouldEqual, 3)
	test.That(t, descriptors.Data.Data(), test.ShouldResemble, []uint8{10, 20, 30, 40, 50, 60})
}

func TestReadFeaturesFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jpg.features.npz")
	writeFeaturesNpz(t, path,
		"<f4", 0, 4, []float32{},
		"|u1", 0, 128, []uint8{})

	points, descriptors, err := readFeaturesFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points.DType, test.ShouldEqual, kapture.Float32)
	test.That(t, points.Rows, test.ShouldEqual, 0)
	test.That(t, points.Cols, test.ShouldEqual, 4)
	test.That(t, points.Data, test.ShouldBeNil)
	test.That(t, descriptors.Cols, test.ShouldEqual, 128)
}

func TestDtypeFromDescr(t *testing.T) {
	for descr, want := range map[string]kapture.DType{
		"<f4": kapture.Float32,
		"<f8": kapture.Float64,
		"=f8": kapture.Float64,
		"|u1": kapture.Uint8,
		"<u4": kapture.Uint32,
		"<i4": kapture.Int32,
		"<i8": kapture.Int64,
	} {
		got, err := dtypeFromDescr(descr)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}

	_, err := dtypeFromDescr(">f8")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "big-endian")

	_, err = dtypeFromDescr("<c16")
	test.That(t, err, test.ShouldNotBeNil)
}
