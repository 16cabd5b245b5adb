package kapture

import (
	"strconv"

	"github.com/pkg/errors"
)

// CameraModel names an intrinsic calibration model. The names and parameter
// layouts follow the COLMAP camera model family.
type CameraModel string

// Supported camera models.
const (
	SimplePinhole       CameraModel = "SIMPLE_PINHOLE"
	Pinhole             CameraModel = "PINHOLE"
	SimpleRadial        CameraModel = "SIMPLE_RADIAL"
	Radial              CameraModel = "RADIAL"
	OpenCV              CameraModel = "OPENCV"
	OpenCVFisheye       CameraModel = "OPENCV_FISHEYE"
	FullOpenCV          CameraModel = "FULL_OPENCV"
	FOV                 CameraModel = "FOV"
	SimpleRadialFisheye CameraModel = "SIMPLE_RADIAL_FISHEYE"
	RadialFisheye       CameraModel = "RADIAL_FISHEYE"
	ThinPrismFisheye    CameraModel = "THIN_PRISM_FISHEYE"
)

// modelParamCounts gives the number of intrinsic parameters each model
// carries beyond the image width and height.
var modelParamCounts = map[CameraModel]int{
	SimplePinhole:       3,
	Pinhole:             4,
	SimpleRadial:        4,
	Radial:              5,
	OpenCV:              8,
	OpenCVFisheye:       8,
	FullOpenCV:          12,
	FOV:                 5,
	SimpleRadialFisheye: 4,
	RadialFisheye:       5,
	ThinPrismFisheye:    12,
}

// NumParams returns how many numeric parameters a camera of this model
// declares, width and height included, or an error for an unknown model.
func (m CameraModel) NumParams() (int, error) {
	n, ok := modelParamCounts[m]
	if !ok {
		return 0, errors.Errorf("unknown camera model %q", string(m))
	}
	return n + 2, nil
}

// Camera is a camera sensor declaration: an intrinsic model with its numeric
// parameters. Params always starts with the image width and height, followed
// by the model's intrinsics.
type Camera struct {
	Name   string
	Model  CameraModel
	Params []float64
}

// NewCamera validates the parameter list against the model and returns the
// camera declaration.
func NewCamera(name string, model CameraModel, params []float64) (*Camera, error) {
	want, err := model.NumParams()
	if err != nil {
		return nil, err
	}
	if len(params) != want {
		return nil, errors.Errorf("camera model %s wants %d parameters, got %d", string(model), want, len(params))
	}
	return &Camera{Name: name, Model: model, Params: params}, nil
}

// Width returns the declared image width in pixels.
func (c *Camera) Width() float64 {
	return c.Params[0]
}

// Height returns the declared image height in pixels.
func (c *Camera) Height() float64 {
	return c.Params[1]
}

// AsSensor flattens the camera into a generic sensor declaration whose
// parameters are the model name followed by the numbers.
func (c *Camera) AsSensor() *Sensor {
	params := make([]string, 0, len(c.Params)+1)
	params = append(params, string(c.Model))
	for _, p := range c.Params {
		params = append(params, strconv.FormatFloat(p, 'g', -1, 64))
	}
	return &Sensor{Name: c.Name, Type: SensorTypeCamera, Params: params}
}

// CameraFromSensor parses a camera declaration back out of a generic sensor.
func CameraFromSensor(s *Sensor) (*Camera, error) {
	if s.Type != SensorTypeCamera {
		return nil, errors.Errorf("sensor %q is a %s, not a camera", s.Name, string(s.Type))
	}
	if len(s.Params) == 0 {
		return nil, errors.Errorf("camera %q has no model parameters", s.Name)
	}
	model := CameraModel(s.Params[0])
	params := make([]float64, 0, len(s.Params)-1)
	for _, raw := range s.Params[1:] {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %q parameter %q", s.Name, raw)
		}
		params = append(params, p)
	}
	return NewCamera(s.Name, model, params)
}
