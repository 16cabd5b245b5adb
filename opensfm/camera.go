package opensfm

import (
	"fmt"
	"math"

	"github.com/sfmkit/kapture-go/kapture"
)

// UnsupportedCameraModelError reports a camera whose projection type has no
// kapture translation.
type UnsupportedCameraModelError struct {
	CameraID       string
	ProjectionType string
}

func (e *UnsupportedCameraModelError) Error() string {
	return fmt.Sprintf("camera %q uses unsupported projection type %q", e.CameraID, e.ProjectionType)
}

// translateCamera converts a perspective camera declaration into kapture's
// RADIAL model: [w, h, f, cx, cy, k1, k2]. OpenSfM normalizes focal length by
// the largest image side and stores no principal point, which therefore lands
// at the image center.
func translateCamera(id string, cam *CameraSchema) (*kapture.Camera, error) {
	if cam.ProjectionType != "perspective" {
		return nil, &UnsupportedCameraModelError{CameraID: id, ProjectionType: cam.ProjectionType}
	}
	if cam.Focal == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "cameras." + id + ".focal"}
	}
	var k1, k2 float64
	if cam.K1 != nil {
		k1 = *cam.K1
	}
	if cam.K2 != nil {
		k2 = *cam.K2
	}
	largest := math.Max(cam.Width, cam.Height)
	params := []float64{
		cam.Width,
		cam.Height,
		*cam.Focal * largest,
		cam.Width / 2,
		cam.Height / 2,
		k1,
		k2,
	}
	return kapture.NewCamera(id, kapture.Radial, params)
}
