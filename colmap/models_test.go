package colmap

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sfmkit/kapture-go/kapture"
)

func TestModelOf(t *testing.T) {
	for model, want := range map[kapture.CameraModel]Model{
		kapture.SimplePinhole:    SimplePinhole,
		kapture.Radial:           Radial,
		kapture.OpenCVFisheye:    OpenCVFisheye,
		kapture.ThinPrismFisheye: ThinPrismFisheye,
	} {
		got, err := ModelOf(model)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
		test.That(t, got.String(), test.ShouldEqual, string(model))
	}
	test.That(t, int(SimplePinhole), test.ShouldEqual, 0)
	test.That(t, int(Radial), test.ShouldEqual, 3)
	test.That(t, int(ThinPrismFisheye), test.ShouldEqual, 10)

	_, err := ModelOf(kapture.CameraModel("EQUIRECTANGULAR"))
	var unsupportedErr *UnsupportedCameraModelError
	test.That(t, errors.As(err, &unsupportedErr), test.ShouldBeTrue)
	test.That(t, unsupportedErr.Model, test.ShouldEqual, kapture.CameraModel("EQUIRECTANGULAR"))
}

func TestModelParamCounts(t *testing.T) {
	models := []kapture.CameraModel{
		kapture.SimplePinhole, kapture.Pinhole, kapture.SimpleRadial, kapture.Radial,
		kapture.OpenCV, kapture.OpenCVFisheye, kapture.FullOpenCV, kapture.FOV,
		kapture.SimpleRadialFisheye, kapture.RadialFisheye, kapture.ThinPrismFisheye,
	}
	for _, model := range models {
		id, err := ModelOf(model)
		test.That(t, err, test.ShouldBeNil)
		want, err := model.NumParams()
		test.That(t, err, test.ShouldBeNil)
		// kapture parameter lists carry width and height up front.
		test.That(t, id.ParamCount(), test.ShouldEqual, want-2)
	}
}

func TestCameraRow(t *testing.T) {
	cam, err := kapture.NewCamera("cam0", kapture.Radial, []float64{1920, 1080, 960.5, 960, 540, -0.1, 0.01})
	test.That(t, err, test.ShouldBeNil)

	model, width, height, params, err := CameraRow(cam)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model, test.ShouldEqual, Radial)
	test.That(t, width, test.ShouldEqual, 1920)
	test.That(t, height, test.ShouldEqual, 1080)
	test.That(t, params, test.ShouldResemble, []float64{960.5, 960, 540, -0.1, 0.01})
}
