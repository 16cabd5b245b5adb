package kapture

import "github.com/golang/geo/r3"

// Point3d is one triangulated point with its RGB color on a 0-255 scale.
type Point3d struct {
	Position r3.Vector
	Color    [3]float64
}

// Points3d is the triangulated point cloud. Order is meaningful: a point's
// index is its id.
type Points3d []Point3d
