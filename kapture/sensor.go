// Package kapture models a reconstruction dataset: the sensors that captured
// it, the images and GNSS fixes they recorded, estimated trajectories, local
// image features with their matches, and the triangulated 3D points. It is the
// neutral form the format converters translate in and out of.
package kapture

import (
	"sort"

	"github.com/pkg/errors"
)

// SensorType categorizes a sensor declaration. The format is open ended; the
// converters in this module only produce cameras and GNSS receivers.
type SensorType string

// Sensor types understood by the converters.
const (
	SensorTypeCamera SensorType = "camera"
	SensorTypeGnss   SensorType = "gnss"
)

// Sensor is one device declaration: a free-form name, a type, and
// type-specific string parameters.
type Sensor struct {
	Name   string
	Type   SensorType
	Params []string
}

// Sensors maps sensor ids to their declarations.
type Sensors map[string]*Sensor

// IDs returns the declared sensor ids in sorted order.
func (s Sensors) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddCamera declares a camera sensor under the given id.
func (s Sensors) AddCamera(id string, cam *Camera) {
	s[id] = cam.AsSensor()
}

// Camera returns the camera declaration stored under a sensor id.
func (s Sensors) Camera(id string) (*Camera, error) {
	sensor, ok := s[id]
	if !ok {
		return nil, errors.Errorf("no sensor with id %q", id)
	}
	return CameraFromSensor(sensor)
}
