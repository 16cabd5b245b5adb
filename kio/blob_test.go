package kio

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/sfmkit/kapture-go/kapture"
)

func TestMatrixRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "a.jpg.kpt")

	m := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float64{1, 2, 3, 4.5, -6, 7}))
	test.That(t, WriteMatrix(path, kapture.Float64, m), test.ShouldBeNil)

	back, err := ReadMatrix(path, kapture.Float64, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Shape(), test.ShouldResemble, tensor.Shape{2, 3})
	test.That(t, back.Data(), test.ShouldResemble, []float64{1, 2, 3, 4.5, -6, 7})
}

func TestMatrixFloat32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg.kpt")
	m := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float32{0.5, 1.5, 2.5, 3.5}))
	test.That(t, WriteMatrix(path, kapture.Float32, m), test.ShouldBeNil)

	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(raw), test.ShouldEqual, 16)

	back, err := ReadMatrix(path, kapture.Float32, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Data(), test.ShouldResemble, []float32{0.5, 1.5, 2.5, 3.5})
}

func TestMatrixEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.kpt")
	test.That(t, WriteMatrix(path, kapture.Float64, nil), test.ShouldBeNil)

	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldEqual, 0)

	back, err := ReadMatrix(path, kapture.Float64, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldBeNil)
}

func TestMatrixDTypeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg.kpt")
	m := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 2}))
	err := WriteMatrix(path, kapture.Float32, m)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "collection wants float32")
}

func TestMatrixTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.kpt")
	// 10 bytes cannot hold whole float32 x4 rows
	test.That(t, os.WriteFile(path, make([]byte, 10), 0o644), test.ShouldBeNil)
	_, err := ReadMatrix(path, kapture.Float32, 4)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "whole number")
}
