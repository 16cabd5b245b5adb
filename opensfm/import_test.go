package opensfm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/kio"
	"github.com/sfmkit/kapture-go/spatialmath"
)

// buildTestProject lays out a small OpenSfM project: two cameras, three shots
// in non-alphabetical document order, GPS data for two images, features for
// two and one match table.
func buildTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeTestFile(t, filepath.Join(root, reconstructionFile), `[
  {
    "cameras": {
      "cam_a": {"projection_type": "perspective", "width": 1920, "height": 1080,
                "focal": 0.5, "k1": -0.1, "k2": 0.01},
      "cam_b": {"projection_type": "perspective", "width": 640, "height": 480, "focal": 0.9}
    },
    "shots": {
      "b.jpg": {"camera": "cam_a", "rotation": [0, 0, 0], "translation": [0, 0, 0]},
      "a.jpg": {"camera": "cam_b", "rotation": [0, 0, 1.5707963267948966], "translation": [1, 2, 3]},
      "c.jpg": {"camera": "cam_a", "rotation": [0.3, 0, 0], "translation": [-1, 0, 2]}
    },
    "points": {
      "10": {"coordinates": [1, 2, 3], "color": [255, 0, 0]},
      "2":  {"coordinates": [4, 5, 6], "color": [0, 255, 0]},
      "7":  {"coordinates": [7, 8, 9], "color": [0, 0, 255]}
    }
  }
]`)
	writeTestFile(t, filepath.Join(root, "config.yaml"), "feature_type: HAHOG\n")

	for _, image := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		writeTestFile(t, filepath.Join(root, "images", image), "jpeg bytes of "+image)
	}

	writeTestFile(t, filepath.Join(root, "exif", "a.jpg.exif"),
		`{"gps": {"latitude": 48.85, "longitude": 2.35, "altitude": 35.5, "dop": 2.5}}`)
	writeTestFile(t, filepath.Join(root, "exif", "b.jpg.exif"),
		`{"gps": {"latitude": 40.0, "longitude": -3.7}}`)
	writeTestFile(t, filepath.Join(root, "exif", "c.jpg.exif"),
		`{"make": "NoGPS Corp"}`)
	writeTestFile(t, filepath.Join(root, "exif", "ghost.jpg.exif"),
		`{"gps": {"latitude": 1, "longitude": 1}}`)

	writeFeaturesNpz(t, filepath.Join(root, "features", "a.jpg.features.npz"),
		"<f8", 2, 4, []float64{1, 2, 0.5, 0.1, 3, 4, 0.6, 0.2},
		"|u1", 2, 3, []uint8{10, 20, 30, 40, 50, 60})
	writeFeaturesNpz(t, filepath.Join(root, "features", "b.jpg.features.npz"),
		"<f8", 1, 4, []float64{9, 8, 0.7, 0.3},
		"|u1", 1, 3, []uint8{70, 80, 90})
	writeFeaturesNpz(t, filepath.Join(root, "features", "ghost.jpg.features.npz"),
		"<f8", 1, 4, []float64{0, 0, 0, 0},
		"|u1", 1, 3, []uint8{0, 0, 0})

	writeMatchesPickle(t, filepath.Join(root, "matches", "b.jpg_matches.pkl.gz"), []pickledMatchEntry{
		{image: "a.jpg", rows: [][2]int64{{5, 7}, {1, 0}}},
		{image: "c.jpg", rows: [][2]int64{{2, 3}}},
	})
	return root
}

func TestImport(t *testing.T) {
	logger := golog.NewTestLogger(t)
	project := buildTestProject(t)
	dataset := t.TempDir()

	err := Import(project, dataset, ImportOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)

	k, err := kio.Read(dataset, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, k.Validate(), test.ShouldBeNil)

	// cameras translate to RADIAL with centered principal point, plus one
	// GNSS sensor per camera
	test.That(t, k.Sensors.IDs(), test.ShouldResemble,
		[]string{"GPS_cam_a", "GPS_cam_b", "cam_a", "cam_b"})
	camA, err := k.Sensors.Camera("cam_a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, camA.Model, test.ShouldEqual, kapture.Radial)
	test.That(t, camA.Params, test.ShouldResemble, []float64{1920, 1080, 0.5 * 1920, 960, 540, -0.1, 0.01})
	camB, err := k.Sensors.Camera("cam_b")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, camB.Params, test.ShouldResemble, []float64{640, 480, 0.9 * 640, 320, 240, 0, 0})
	test.That(t, k.Sensors["GPS_cam_a"].Type, test.ShouldEqual, kapture.SensorTypeGnss)
	test.That(t, k.Sensors["GPS_cam_a"].Params, test.ShouldResemble, []string{"EPSG:4326"})

	// timestamps follow document order, not filename order
	test.That(t, k.Records.Flatten(), test.ShouldResemble, []kapture.ImageRecord{
		{Timestamp: 0, SensorID: "cam_a", Filename: "b.jpg"},
		{Timestamp: 1, SensorID: "cam_b", Filename: "a.jpg"},
		{Timestamp: 2, SensorID: "cam_a", Filename: "c.jpg"},
	})

	pose, ok := k.Trajectories.Pose(1, "cam_b")
	test.That(t, ok, test.ShouldBeTrue)
	want := spatialmath.NewPoseTransform(
		spatialmath.RotationVectorToQuat(r3Vec(0, 0, 1.5707963267948966)), r3Vec(1, 2, 3))
	test.That(t, pose.AlmostEqual(want, 1e-9), test.ShouldBeTrue)

	// a.jpg carries a full fix, b.jpg defaults altitude and dop, c.jpg has
	// no GPS block and ghost.jpg is not a known image
	test.That(t, k.Gnss.Flatten(), test.ShouldResemble, []kapture.GnssRecord{
		{Timestamp: 0, SensorID: "GPS_cam_a", Fix: &kapture.RecordGnss{X: -3.7, Y: 40}},
		{Timestamp: 1, SensorID: "GPS_cam_b", Fix: &kapture.RecordGnss{X: 2.35, Y: 48.85, Z: 35.5, DOP: 2.5}},
	})

	test.That(t, k.Keypoints.Name, test.ShouldEqual, "HessianAffine")
	test.That(t, k.Keypoints.DType, test.ShouldEqual, kapture.Float64)
	test.That(t, k.Keypoints.DSize, test.ShouldEqual, 4)
	test.That(t, k.Keypoints.Images(), test.ShouldResemble, []string{"a.jpg", "b.jpg"})
	test.That(t, k.Descriptors.Name, test.ShouldEqual, "HOG")
	test.That(t, k.Descriptors.DType, test.ShouldEqual, kapture.Uint8)
	test.That(t, k.Descriptors.DSize, test.ShouldEqual, 3)

	kps, err := kio.ReadMatrix(kio.KeypointPath(dataset, "a.jpg"), kapture.Float64, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kps.Data(), test.ShouldResemble, []float64{1, 2, 0.5, 0.1, 3, 4, 0.6, 0.2})
	descs, err := kio.ReadMatrix(kio.DescriptorPath(dataset, "b.jpg"), kapture.Uint8, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, descs.Data(), test.ShouldResemble, []uint8{70, 80, 90})

	// the (b, a) table entry normalizes to pair (a, b) with its index
	// columns swapped; (b, c) keeps its order
	test.That(t, k.Matches.Pairs(), test.ShouldResemble, []kapture.ImagePair{
		{Image1: "a.jpg", Image2: "b.jpg"},
		{Image1: "b.jpg", Image2: "c.jpg"},
	})
	swapped, err := kio.ReadMatrix(
		kio.MatchPath(dataset, kapture.MakeImagePair("a.jpg", "b.jpg")), kapture.Float64, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, swapped.Data(), test.ShouldResemble, []float64{7, 5, 1, 0, 1, 1})
	straight, err := kio.ReadMatrix(
		kio.MatchPath(dataset, kapture.MakeImagePair("b.jpg", "c.jpg")), kapture.Float64, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, straight.Data(), test.ShouldResemble, []float64{2, 3, 1})

	// point ids sort as strings: "10" < "2" < "7"
	test.That(t, k.Points3d, test.ShouldResemble, kapture.Points3d{
		{Position: r3Vec(1, 2, 3), Color: [3]float64{255, 0, 0}},
		{Position: r3Vec(4, 5, 6), Color: [3]float64{0, 255, 0}},
		{Position: r3Vec(7, 8, 9), Color: [3]float64{0, 0, 255}},
	})

	copied, err := os.ReadFile(kio.RecordDataPath(dataset, "a.jpg"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(copied), test.ShouldEqual, "jpeg bytes of a.jpg")
}

func TestImportRefusesNonEmptyDestination(t *testing.T) {
	logger := golog.NewTestLogger(t)
	project := buildTestProject(t)
	dataset := t.TempDir()

	test.That(t, Import(project, dataset, ImportOptions{}, logger), test.ShouldBeNil)

	err := Import(project, dataset, ImportOptions{}, logger)
	test.That(t, errors.Is(err, ErrDestinationNotEmpty), test.ShouldBeTrue)

	// forcing clears the previous dataset first
	err = Import(project, dataset, ImportOptions{Force: true}, logger)
	test.That(t, err, test.ShouldBeNil)
	k, err := kio.Read(dataset, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, k.Records.Flatten(), test.ShouldHaveLength, 3)
}

func TestImportTransferSkip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	project := buildTestProject(t)
	dataset := t.TempDir()

	err := Import(project, dataset, ImportOptions{ImageTransfer: kio.TransferSkip}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(kio.RecordDataPath(dataset, "a.jpg"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestImportProgress(t *testing.T) {
	logger := golog.NewTestLogger(t)
	project := buildTestProject(t)
	dataset := t.TempDir()

	var calls int
	err := Import(project, dataset, ImportOptions{
		Progress: func(done, total int) {
			calls++
			test.That(t, done, test.ShouldBeLessThanOrEqualTo, total)
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	// three image transfers, three feature archives, one match table
	test.That(t, calls, test.ShouldEqual, 7)
}

func TestImportFeatureShapeMismatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, reconstructionFile), `[
  {
    "cameras": {"cam": {"projection_type": "perspective", "width": 10, "height": 10, "focal": 1}},
    "shots": {
      "d.jpg": {"camera": "cam", "rotation": [0, 0, 0], "translation": [0, 0, 0]},
      "e.jpg": {"camera": "cam", "rotation": [0, 0, 0], "translation": [0, 0, 0]}
    }
  }
]`)
	writeFeaturesNpz(t, filepath.Join(root, "features", "d.jpg.features.npz"),
		"<f8", 1, 4, []float64{1, 2, 3, 4},
		"|u1", 1, 3, []uint8{1, 2, 3})
	writeFeaturesNpz(t, filepath.Join(root, "features", "e.jpg.features.npz"),
		"<f8", 1, 4, []float64{1, 2, 3, 4},
		"|u1", 1, 5, []uint8{1, 2, 3, 4, 5})

	err := Import(root, t.TempDir(), ImportOptions{ImageTransfer: kio.TransferSkip}, logger)
	var shapeErr *kapture.FeatureShapeError
	test.That(t, errors.As(err, &shapeErr), test.ShouldBeTrue)
	test.That(t, shapeErr.Image, test.ShouldEqual, "e.jpg")
	test.That(t, shapeErr.WantDSize, test.ShouldEqual, 3)
	test.That(t, shapeErr.GotDSize, test.ShouldEqual, 5)
}

func TestImportUnsupportedProjection(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, reconstructionFile), `[
  {
    "cameras": {"sphere": {"projection_type": "spherical", "width": 100, "height": 50}},
    "shots": {}
  }
]`)
	err := Import(root, t.TempDir(), ImportOptions{}, logger)
	var unsupported *UnsupportedCameraModelError
	test.That(t, errors.As(err, &unsupported), test.ShouldBeTrue)
	test.That(t, unsupported.CameraID, test.ShouldEqual, "sphere")
}

// r3Vec is shorthand for building test vectors.
func r3Vec(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}
