// Package opensfm imports OpenSfM projects into kapture datasets. An OpenSfM
// project keeps its reconstruction in one JSON document and the rest of its
// state in sidecar files: EXIF extracts, numpy feature archives, pickled
// match tables and a YAML configuration.
package opensfm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// reconstructionFile is the document holding cameras, shots and points.
const reconstructionFile = "reconstruction.json"

// Reconstruction is one OpenSfM reconstruction: intrinsic declarations,
// posed shots and triangulated points. Points are optional.
type Reconstruction struct {
	Cameras map[string]*CameraSchema
	Shots   *ShotMap
	Points  map[string]*PointSchema
}

// CameraSchema is one camera declaration. Focal and the distortion
// coefficients are optional in the document; Focal must be present for the
// projection types that use it.
type CameraSchema struct {
	ProjectionType string
	Width          float64
	Height         float64
	Focal          *float64
	K1             *float64
	K2             *float64
}

// Shot is one posed image: which camera took it and the world-to-camera
// rotation vector and translation.
type Shot struct {
	Camera      string
	Rotation    r3.Vector
	Translation r3.Vector
	CaptureTime float64
}

// PointSchema is one triangulated point of the document.
type PointSchema struct {
	Coordinates []float64 `json:"coordinates"`
	Color       []float64 `json:"color"`
}

// MissingFieldError reports a source document lacking a field the conversion
// cannot proceed without.
type MissingFieldError struct {
	File  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is missing required field %q", e.File, e.Field)
}

type reconstructionRaw struct {
	Cameras map[string]*cameraRaw   `json:"cameras"`
	Shots   *ShotMap                `json:"shots"`
	Points  map[string]*PointSchema `json:"points"`
}

type cameraRaw struct {
	ProjectionType *string  `json:"projection_type"`
	Width          *float64 `json:"width"`
	Height         *float64 `json:"height"`
	Focal          *float64 `json:"focal"`
	K1             *float64 `json:"k1"`
	K2             *float64 `json:"k2"`
}

type shotRaw struct {
	Camera      *string   `json:"camera"`
	Rotation    []float64 `json:"rotation"`
	Translation []float64 `json:"translation"`
	CaptureTime float64   `json:"capture_time"`
}

// LoadReconstruction reads a reconstruction.json. The document is a list;
// only the first (largest) reconstruction is imported, matching the upstream
// convention.
func LoadReconstruction(path string, logger golog.Logger) (*Reconstruction, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "loading reconstruction")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", reconstructionFile)
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("%s contains no reconstructions", reconstructionFile)
	}
	if len(entries) > 1 {
		logger.Warnw("document holds multiple reconstructions, importing the first",
			"count", len(entries))
	}

	var raw reconstructionRaw
	if err := json.Unmarshal(entries[0], &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", reconstructionFile)
	}
	if raw.Cameras == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "cameras"}
	}
	if raw.Shots == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "shots"}
	}

	rec := &Reconstruction{
		Cameras: make(map[string]*CameraSchema, len(raw.Cameras)),
		Shots:   raw.Shots,
		Points:  raw.Points,
	}
	for id, cam := range raw.Cameras {
		validated, err := cam.validate(id)
		if err != nil {
			return nil, err
		}
		rec.Cameras[id] = validated
	}
	for _, name := range rec.Shots.Names() {
		shot, _ := rec.Shots.Get(name)
		if _, ok := rec.Cameras[shot.Camera]; !ok {
			return nil, errors.Errorf("shot %q references unknown camera %q", name, shot.Camera)
		}
	}
	for id, p := range rec.Points {
		if len(p.Coordinates) != 3 {
			return nil, errors.Errorf("point %q wants 3 coordinates, got %d", id, len(p.Coordinates))
		}
		if len(p.Color) != 3 {
			return nil, errors.Errorf("point %q wants 3 color channels, got %d", id, len(p.Color))
		}
	}
	return rec, nil
}

func (c *cameraRaw) validate(id string) (*CameraSchema, error) {
	if c.ProjectionType == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "cameras." + id + ".projection_type"}
	}
	if c.Width == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "cameras." + id + ".width"}
	}
	if c.Height == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "cameras." + id + ".height"}
	}
	return &CameraSchema{
		ProjectionType: *c.ProjectionType,
		Width:          *c.Width,
		Height:         *c.Height,
		Focal:          c.Focal,
		K1:             c.K1,
		K2:             c.K2,
	}, nil
}

func (s *shotRaw) validate(name string) (*Shot, error) {
	if s.Camera == nil {
		return nil, &MissingFieldError{File: reconstructionFile, Field: "shots." + name + ".camera"}
	}
	if len(s.Rotation) != 3 {
		return nil, errors.Errorf("shot %q rotation wants 3 components, got %d", name, len(s.Rotation))
	}
	if len(s.Translation) != 3 {
		return nil, errors.Errorf("shot %q translation wants 3 components, got %d", name, len(s.Translation))
	}
	return &Shot{
		Camera:      *s.Camera,
		Rotation:    r3.Vector{X: s.Rotation[0], Y: s.Rotation[1], Z: s.Rotation[2]},
		Translation: r3.Vector{X: s.Translation[0], Y: s.Translation[1], Z: s.Translation[2]},
		CaptureTime: s.CaptureTime,
	}, nil
}

// ShotMap holds shots keyed by image name, preserving document order. Shot
// order assigns capture timestamps, so losing it would reshuffle the whole
// dataset.
type ShotMap struct {
	names []string
	shots map[string]*Shot
}

// UnmarshalJSON decodes the shots object token by token so insertion order
// survives.
func (m *ShotMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "parsing shots")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("shots is not an object")
	}
	m.shots = map[string]*Shot{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "parsing shots")
		}
		name, ok := keyTok.(string)
		if !ok {
			return errors.Errorf("unexpected shots key %v", keyTok)
		}
		var raw shotRaw
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "parsing shot %q", name)
		}
		shot, err := raw.validate(name)
		if err != nil {
			return err
		}
		if _, seen := m.shots[name]; !seen {
			m.names = append(m.names, name)
		}
		m.shots[name] = shot
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "parsing shots")
	}
	return nil
}

// Len returns the number of shots.
func (m *ShotMap) Len() int {
	return len(m.names)
}

// Names returns the image names in document order.
func (m *ShotMap) Names() []string {
	return m.names
}

// Get looks a shot up by image name.
func (m *ShotMap) Get(name string) (*Shot, bool) {
	shot, ok := m.shots[name]
	return shot, ok
}
