package kapture

import (
	"fmt"
	"sort"
)

// Features describes one collection of per-image binary feature arrays. Every
// file in a collection shares the detector name, element dtype and row width
// (dsize); the collection tracks which images carry a file.
type Features struct {
	Name  string
	DType DType
	DSize int

	images map[string]struct{}
}

// NewFeatures creates an empty collection with a fixed shape.
func NewFeatures(name string, dtype DType, dsize int) *Features {
	return &Features{Name: name, DType: dtype, DSize: dsize, images: map[string]struct{}{}}
}

// Add registers an image as carrying a feature file.
func (f *Features) Add(image string) {
	f.images[image] = struct{}{}
}

// Has reports whether an image carries a feature file.
func (f *Features) Has(image string) bool {
	_, ok := f.images[image]
	return ok
}

// Len returns the number of registered images.
func (f *Features) Len() int {
	return len(f.images)
}

// Images returns the registered image paths in sorted order.
func (f *Features) Images() []string {
	out := make([]string, 0, len(f.images))
	for image := range f.images {
		out = append(out, image)
	}
	sort.Strings(out)
	return out
}

// CheckShape verifies that a file's dtype and row width agree with the
// collection. Collections are homogeneous; a single disagreeing file makes
// the whole dataset ambiguous, so the caller is expected to abort.
func (f *Features) CheckShape(image string, dtype DType, dsize int) error {
	if dtype == f.DType && dsize == f.DSize {
		return nil
	}
	return &FeatureShapeError{
		Name:      f.Name,
		Image:     image,
		WantDType: f.DType,
		WantDSize: f.DSize,
		GotDType:  dtype,
		GotDSize:  dsize,
	}
}

// FeatureShapeError reports a feature file whose dtype or row width disagrees
// with the collection it belongs to.
type FeatureShapeError struct {
	Name      string
	Image     string
	WantDType DType
	WantDSize int
	GotDType  DType
	GotDSize  int
}

func (e *FeatureShapeError) Error() string {
	return fmt.Sprintf("%s features of %q are %s x%d, want %s x%d",
		e.Name, e.Image, string(e.GotDType), e.GotDSize, string(e.WantDType), e.WantDSize)
}
