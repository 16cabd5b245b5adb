package kapture

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sfmkit/kapture-go/spatialmath"
)

func TestImagePairNormalization(t *testing.T) {
	test.That(t, MakeImagePair("b.jpg", "a.jpg"), test.ShouldResemble, ImagePair{Image1: "a.jpg", Image2: "b.jpg"})
	test.That(t, MakeImagePair("a.jpg", "b.jpg"), test.ShouldResemble, ImagePair{Image1: "a.jpg", Image2: "b.jpg"})

	m := Matches{}
	m.Add("b.jpg", "a.jpg")
	m.Add("a.jpg", "b.jpg")
	m.Add("a.jpg", "c.jpg")
	test.That(t, len(m), test.ShouldEqual, 2)
	test.That(t, m.Has("b.jpg", "a.jpg"), test.ShouldBeTrue)
	test.That(t, m.Has("c.jpg", "a.jpg"), test.ShouldBeTrue)
	test.That(t, m.Has("b.jpg", "c.jpg"), test.ShouldBeFalse)
	test.That(t, m.Pairs(), test.ShouldResemble, []ImagePair{
		{Image1: "a.jpg", Image2: "b.jpg"},
		{Image1: "a.jpg", Image2: "c.jpg"},
	})
}

func TestFeaturesShape(t *testing.T) {
	kpts := NewFeatures("HessianAffine", Float64, 4)
	test.That(t, kpts.CheckShape("a.jpg", Float64, 4), test.ShouldBeNil)
	kpts.Add("a.jpg")
	// row counts are free to vary between images, only the row width is fixed
	test.That(t, kpts.CheckShape("b.jpg", Float64, 4), test.ShouldBeNil)
	kpts.Add("b.jpg")
	test.That(t, kpts.Len(), test.ShouldEqual, 2)
	test.That(t, kpts.Images(), test.ShouldResemble, []string{"a.jpg", "b.jpg"})
	test.That(t, kpts.Has("a.jpg"), test.ShouldBeTrue)
	test.That(t, kpts.Has("z.jpg"), test.ShouldBeFalse)

	err := kpts.CheckShape("c.jpg", Float64, 5)
	test.That(t, err, test.ShouldNotBeNil)
	var shapeErr *FeatureShapeError
	test.That(t, errors.As(err, &shapeErr), test.ShouldBeTrue)
	test.That(t, shapeErr.Image, test.ShouldEqual, "c.jpg")
	test.That(t, shapeErr.WantDSize, test.ShouldEqual, 4)
	test.That(t, shapeErr.GotDSize, test.ShouldEqual, 5)

	err = kpts.CheckShape("c.jpg", Float32, 4)
	test.That(t, errors.As(err, &shapeErr), test.ShouldBeTrue)
	test.That(t, shapeErr.GotDType, test.ShouldEqual, Float32)
}

func TestRecordsFlatten(t *testing.T) {
	recs := ImageRecords{}
	recs.Add(1, "cam1", "b.jpg")
	recs.Add(1, "cam0", "a.jpg")
	recs.Add(0, "cam0", "c.jpg")
	test.That(t, recs.Flatten(), test.ShouldResemble, []ImageRecord{
		{Timestamp: 0, SensorID: "cam0", Filename: "c.jpg"},
		{Timestamp: 1, SensorID: "cam0", Filename: "a.jpg"},
		{Timestamp: 1, SensorID: "cam1", Filename: "b.jpg"},
	})
	test.That(t, recs.Filenames(), test.ShouldResemble, []string{"a.jpg", "b.jpg", "c.jpg"})
	test.That(t, recs.HasFilename("b.jpg"), test.ShouldBeTrue)
	test.That(t, recs.HasFilename("z.jpg"), test.ShouldBeFalse)
}

func TestGnssLocation(t *testing.T) {
	fix := &RecordGnss{X: -71.06, Y: 42.36, Z: 12}
	loc := fix.Location()
	test.That(t, loc.Lat(), test.ShouldAlmostEqual, 42.36)
	test.That(t, loc.Lng(), test.ShouldAlmostEqual, -71.06)
}

func newTestDataset(t *testing.T) *Kapture {
	t.Helper()
	k := New()
	cam, err := NewCamera("front", SimplePinhole, []float64{640, 480, 512, 320, 240})
	test.That(t, err, test.ShouldBeNil)
	k.Sensors.AddCamera("cam0", cam)
	k.Records.Add(0, "cam0", "a.jpg")
	k.Records.Add(1, "cam0", "b.jpg")
	k.Trajectories.Add(0, "cam0", spatialmath.IdentityPose())
	return k
}

func TestValidate(t *testing.T) {
	k := newTestDataset(t)
	test.That(t, k.Validate(), test.ShouldBeNil)

	k.Trajectories.Add(2, "cam9", spatialmath.IdentityPose())
	err := k.Validate()
	var dangling *DanglingReferenceError
	test.That(t, errors.As(err, &dangling), test.ShouldBeTrue)
	test.That(t, dangling.ID, test.ShouldEqual, "cam9")
	delete(k.Trajectories, 2)

	k.Keypoints = NewFeatures("HessianAffine", Float64, 4)
	k.Keypoints.Add("missing.jpg")
	err = k.Validate()
	test.That(t, errors.As(err, &dangling), test.ShouldBeTrue)
	test.That(t, dangling.Kind, test.ShouldEqual, "image")
	k.Keypoints = nil

	k.Matches = Matches{}
	k.Matches.Add("a.jpg", "nope.jpg")
	err = k.Validate()
	test.That(t, errors.As(err, &dangling), test.ShouldBeTrue)
	test.That(t, dangling.ID, test.ShouldEqual, "nope.jpg")
}

func TestRemoveRigs(t *testing.T) {
	k := newTestDataset(t)
	cam, err := NewCamera("left", SimplePinhole, []float64{640, 480, 512, 320, 240})
	test.That(t, err, test.ShouldBeNil)
	k.Sensors.AddCamera("cam1", cam)

	k.Rigs = Rigs{}
	k.Rigs.Add("rig0", "cam0", spatialmath.IdentityPose())
	k.Rigs.Add("rig0", "cam1", spatialmath.NewPoseTransform(
		spatialmath.RotationVectorToQuat(r3.Vector{Z: math.Pi / 2.}), r3.Vector{X: 1}))

	rigPose := spatialmath.NewPoseTransform(
		spatialmath.RotationVectorToQuat(r3.Vector{}), r3.Vector{Y: 2})
	k.Trajectories.Add(5, "rig0", rigPose)
	test.That(t, k.Validate(), test.ShouldBeNil)

	k.RemoveRigs()
	test.That(t, k.Rigs, test.ShouldBeNil)
	_, ok := k.Trajectories.Pose(5, "rig0")
	test.That(t, ok, test.ShouldBeFalse)

	cam0Pose, ok := k.Trajectories.Pose(5, "cam0")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cam0Pose.AlmostEqual(rigPose, 1e-8), test.ShouldBeTrue)

	// mounting pose composed on top of the rig pose: the rig translation
	// (0,2,0) rotates to (-2,0,0) before the (1,0,0) mount offset applies
	cam1Pose, ok := k.Trajectories.Pose(5, "cam1")
	test.That(t, ok, test.ShouldBeTrue)
	pt := cam1Pose.TransformPoint(r3.Vector{})
	test.That(t, pt.X, test.ShouldAlmostEqual, -1)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 0)
	test.That(t, pt.Z, test.ShouldAlmostEqual, 0)

	test.That(t, k.Validate(), test.ShouldBeNil)
}
