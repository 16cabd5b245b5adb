package kapture

import (
	"sort"

	"github.com/sfmkit/kapture-go/spatialmath"
)

// Rigs declares fixed sensor assemblies: rig id to sensor id to the pose
// taking rig coordinates into that sensor's frame.
type Rigs map[string]map[string]*spatialmath.PoseTransform

// Add registers a sensor's mounting pose on a rig.
func (r Rigs) Add(rigID, sensorID string, pose *spatialmath.PoseTransform) {
	if _, ok := r[rigID]; !ok {
		r[rigID] = map[string]*spatialmath.PoseTransform{}
	}
	r[rigID][sensorID] = pose
}

// IDs returns the rig ids in sorted order.
func (r Rigs) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RigEntry is one flattened rig member.
type RigEntry struct {
	RigID    string
	SensorID string
	Pose     *spatialmath.PoseTransform
}

// Flatten returns all rig members ordered by rig id then sensor id.
func (r Rigs) Flatten() []RigEntry {
	var out []RigEntry
	for _, rigID := range r.IDs() {
		for _, sensorID := range sensorIDs(r[rigID]) {
			out = append(out, RigEntry{RigID: rigID, SensorID: sensorID, Pose: r[rigID][sensorID]})
		}
	}
	return out
}
