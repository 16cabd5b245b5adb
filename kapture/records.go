package kapture

import (
	"sort"

	geo "github.com/kellydunn/golang-geo"

	"github.com/sfmkit/kapture-go/spatialmath"
)

// timestamps returns the keys of a timestamped collection in ascending order.
func timestamps[V any](m map[int64]map[string]V) []int64 {
	ts := make([]int64, 0, len(m))
	for t := range m {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

// sensorIDs returns the sensor keys of one timestamp's entries in sorted order.
func sensorIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ImageRecords stores which sensor captured which image at which timestamp.
type ImageRecords map[int64]map[string]string

// Add registers an image record.
func (r ImageRecords) Add(timestamp int64, sensorID, filename string) {
	if _, ok := r[timestamp]; !ok {
		r[timestamp] = map[string]string{}
	}
	r[timestamp][sensorID] = filename
}

// ImageRecord is one flattened image record.
type ImageRecord struct {
	Timestamp int64
	SensorID  string
	Filename  string
}

// Flatten returns all records ordered by timestamp then sensor id.
func (r ImageRecords) Flatten() []ImageRecord {
	var out []ImageRecord
	for _, ts := range timestamps(r) {
		for _, id := range sensorIDs(r[ts]) {
			out = append(out, ImageRecord{Timestamp: ts, SensorID: id, Filename: r[ts][id]})
		}
	}
	return out
}

// Filenames returns the recorded image paths in sorted order, deduplicated.
func (r ImageRecords) Filenames() []string {
	seen := map[string]struct{}{}
	for _, bySensor := range r {
		for _, name := range bySensor {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasFilename reports whether any sensor recorded the given image path.
func (r ImageRecords) HasFilename(filename string) bool {
	for _, bySensor := range r {
		for _, name := range bySensor {
			if name == filename {
				return true
			}
		}
	}
	return false
}

// RecordGnss is one GNSS fix. X is the longitude, Y the latitude and Z the
// altitude of the position; UTC is the capture time in milliseconds and DOP
// the dilution of precision.
type RecordGnss struct {
	X   float64
	Y   float64
	Z   float64
	UTC int64
	DOP float64
}

// Location returns the fix as a latitude/longitude point.
func (g *RecordGnss) Location() *geo.Point {
	return geo.NewPoint(g.Y, g.X)
}

// GnssRecords stores GNSS fixes by timestamp and sensor.
type GnssRecords map[int64]map[string]*RecordGnss

// Add registers a GNSS fix.
func (r GnssRecords) Add(timestamp int64, sensorID string, fix *RecordGnss) {
	if _, ok := r[timestamp]; !ok {
		r[timestamp] = map[string]*RecordGnss{}
	}
	r[timestamp][sensorID] = fix
}

// GnssRecord is one flattened GNSS record.
type GnssRecord struct {
	Timestamp int64
	SensorID  string
	Fix       *RecordGnss
}

// Flatten returns all fixes ordered by timestamp then sensor id.
func (r GnssRecords) Flatten() []GnssRecord {
	var out []GnssRecord
	for _, ts := range timestamps(r) {
		for _, id := range sensorIDs(r[ts]) {
			out = append(out, GnssRecord{Timestamp: ts, SensorID: id, Fix: r[ts][id]})
		}
	}
	return out
}

// Trajectories stores estimated poses by timestamp and device. The device can
// be a plain sensor or a rig; poses map world coordinates into the device
// frame.
type Trajectories map[int64]map[string]*spatialmath.PoseTransform

// Add registers a pose.
func (tr Trajectories) Add(timestamp int64, deviceID string, pose *spatialmath.PoseTransform) {
	if _, ok := tr[timestamp]; !ok {
		tr[timestamp] = map[string]*spatialmath.PoseTransform{}
	}
	tr[timestamp][deviceID] = pose
}

// Pose looks up the pose of a device at a timestamp.
func (tr Trajectories) Pose(timestamp int64, deviceID string) (*spatialmath.PoseTransform, bool) {
	pose, ok := tr[timestamp][deviceID]
	return pose, ok
}

// TrajectoryEntry is one flattened pose entry.
type TrajectoryEntry struct {
	Timestamp int64
	DeviceID  string
	Pose      *spatialmath.PoseTransform
}

// Flatten returns all poses ordered by timestamp then device id.
func (tr Trajectories) Flatten() []TrajectoryEntry {
	var out []TrajectoryEntry
	for _, ts := range timestamps(tr) {
		for _, id := range sensorIDs(tr[ts]) {
			out = append(out, TrajectoryEntry{Timestamp: ts, DeviceID: id, Pose: tr[ts][id]})
		}
	}
	return out
}
