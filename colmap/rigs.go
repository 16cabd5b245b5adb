package colmap

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sfmkit/kapture-go/kapture"
)

// colmapRig is one entry of COLMAP's rig configuration JSON. COLMAP tells a
// rig's cameras apart by the leading path fragment of their image names.
type colmapRig struct {
	RefCameraID int64          `json:"ref_camera_id"`
	Cameras     []rigCameraRef `json:"cameras"`
}

type rigCameraRef struct {
	CameraID    int64  `json:"camera_id"`
	ImagePrefix string `json:"image_prefix"`
}

// writeRigs renders the dataset's rig declarations as a COLMAP rig
// configuration file. Every rig member must be an exported camera; COLMAP
// has no way to reference anything else.
func writeRigs(path string, rigs kapture.Rigs, records kapture.ImageRecords, cameraIDs map[string]int64) error {
	if len(rigs) == 0 {
		return errors.New("no rig to export")
	}
	prefixes := imagePrefixes(records)
	out := make([]colmapRig, 0, len(rigs))
	for _, rigID := range rigs.IDs() {
		members := maps.Keys(rigs[rigID])
		slices.Sort(members)
		rig := colmapRig{Cameras: make([]rigCameraRef, 0, len(members))}
		for _, sensorID := range members {
			cameraID, ok := cameraIDs[sensorID]
			if !ok {
				return errors.Errorf("rig %q member %q is not an exported camera", rigID, sensorID)
			}
			rig.Cameras = append(rig.Cameras, rigCameraRef{
				CameraID:    cameraID,
				ImagePrefix: prefixes[sensorID],
			})
		}
		if len(rig.Cameras) == 0 {
			return errors.Errorf("rig %q has no members", rigID)
		}
		rig.RefCameraID = rig.Cameras[0].CameraID
		out = append(out, rig)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding rig configuration")
	}
	return errors.Wrapf(os.WriteFile(path, append(data, '\n'), 0o644), "writing %s", path)
}

// imagePrefixes computes, per sensor, the longest common prefix of its
// recorded image paths.
func imagePrefixes(records kapture.ImageRecords) map[string]string {
	prefixes := map[string]string{}
	for _, rec := range records.Flatten() {
		prefix, ok := prefixes[rec.SensorID]
		if !ok {
			prefixes[rec.SensorID] = rec.Filename
			continue
		}
		prefixes[rec.SensorID] = commonPrefix(prefix, rec.Filename)
	}
	return prefixes
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
