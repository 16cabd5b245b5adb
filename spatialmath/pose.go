package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// PoseTransform is a rigid transform taking points in a parent frame to a
// child frame, e.g. world coordinates to device coordinates. Composed of a
// rotation applied before the translation: child = R*parent + T.
type PoseTransform struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// NewPoseTransform creates a pose from a rotation quaternion and a translation vector.
func NewPoseTransform(rotation quat.Number, translation r3.Vector) *PoseTransform {
	return &PoseTransform{Rotation: Normalize(rotation), Translation: translation}
}

// IdentityPose returns a pose which transforms nothing.
func IdentityPose() *PoseTransform {
	return &PoseTransform{Rotation: quat.Number{Real: 1}}
}

// Mul composes two poses. If pt takes frame b to frame a and other takes
// frame c to frame b, the result takes frame c to frame a.
func (pt *PoseTransform) Mul(other *PoseTransform) *PoseTransform {
	return &PoseTransform{
		Rotation:    quat.Mul(pt.Rotation, other.Rotation),
		Translation: rotateVector(pt.Rotation, other.Translation).Add(pt.Translation),
	}
}

// Inverse returns the pose mapping the child frame back to the parent frame.
func (pt *PoseTransform) Inverse() *PoseTransform {
	invR := quat.Conj(pt.Rotation)
	invT := rotateVector(invR, pt.Translation)
	return &PoseTransform{
		Rotation:    invR,
		Translation: r3.Vector{X: -invT.X, Y: -invT.Y, Z: -invT.Z},
	}
}

// TransformPoint applies the pose to a point in the parent frame.
func (pt *PoseTransform) TransformPoint(p r3.Vector) r3.Vector {
	return rotateVector(pt.Rotation, p).Add(pt.Translation)
}

// AlmostEqual compares rotation and translation against another pose within tol.
func (pt *PoseTransform) AlmostEqual(other *PoseTransform, tol float64) bool {
	return QuaternionAlmostEqual(pt.Rotation, other.Rotation, tol) &&
		R3VectorAlmostEqual(pt.Translation, other.Translation, tol)
}

// rotateVector rotates a vector by the quaternion sandwich product q*v*q^-1.
func rotateVector(q quat.Number, v r3.Vector) r3.Vector {
	vQ := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rotated := quat.Mul(quat.Mul(q, vQ), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}
