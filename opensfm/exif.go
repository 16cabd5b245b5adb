package opensfm

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// exifSuffix marks OpenSfM EXIF extracts under exif/.
const exifSuffix = ".exif"

type exifGps struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Dop       *float64 `json:"dop"`
}

type exifData struct {
	Gps *exifGps `json:"gps"`
}

// readExifFile parses one EXIF extract. The gps block and its altitude and
// dop fields are all optional.
func readExifFile(path string) (*exifData, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "reading exif")
	}
	var parsed exifData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &parsed, nil
}

// usable reports whether the gps block carries the coordinates a GNSS record
// needs.
func (g *exifGps) usable() bool {
	return g != nil && g.Latitude != nil && g.Longitude != nil
}
