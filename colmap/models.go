package colmap

import (
	"fmt"

	"github.com/sfmkit/kapture-go/kapture"
)

// Model numbers an intrinsic camera model the way COLMAP does in its database
// and reconstruction files.
type Model int

// The COLMAP camera model ids.
const (
	SimplePinhole Model = iota
	Pinhole
	SimpleRadial
	Radial
	OpenCV
	OpenCVFisheye
	FullOpenCV
	FOV
	SimpleRadialFisheye
	RadialFisheye
	ThinPrismFisheye
)

var modelNames = [...]string{
	"SIMPLE_PINHOLE",
	"PINHOLE",
	"SIMPLE_RADIAL",
	"RADIAL",
	"OPENCV",
	"OPENCV_FISHEYE",
	"FULL_OPENCV",
	"FOV",
	"SIMPLE_RADIAL_FISHEYE",
	"RADIAL_FISHEYE",
	"THIN_PRISM_FISHEYE",
}

var modelParamCounts = [...]int{3, 4, 4, 5, 8, 8, 12, 5, 4, 5, 12}

func (m Model) String() string {
	if m < 0 || int(m) >= len(modelNames) {
		return fmt.Sprintf("Model(%d)", int(m))
	}
	return modelNames[m]
}

// ParamCount returns how many intrinsic parameters the model stores, image
// width and height excluded.
func (m Model) ParamCount() int {
	if m < 0 || int(m) >= len(modelParamCounts) {
		return 0
	}
	return modelParamCounts[m]
}

// ModelOf resolves a kapture camera model to its COLMAP id. The two families
// share their names, so the mapping is exact or fails.
func ModelOf(model kapture.CameraModel) (Model, error) {
	for id, name := range modelNames {
		if name == string(model) {
			return Model(id), nil
		}
	}
	return 0, &UnsupportedCameraModelError{Model: model}
}

// UnsupportedCameraModelError reports a camera model COLMAP has no id for.
type UnsupportedCameraModelError struct {
	Model kapture.CameraModel
}

func (e *UnsupportedCameraModelError) Error() string {
	return fmt.Sprintf("camera model %q has no colmap equivalent", string(e.Model))
}

// CameraRow splits a kapture camera into the columns of a COLMAP camera row:
// model id, width and height, and the remaining intrinsic parameters.
func CameraRow(cam *kapture.Camera) (Model, int64, int64, []float64, error) {
	model, err := ModelOf(cam.Model)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return model, int64(cam.Width()), int64(cam.Height()), cam.Params[2:], nil
}
