package kapture

import "fmt"

// Kapture aggregates everything a dataset can hold. Collections that were not
// present on disk, or not produced by a converter, are left nil.
type Kapture struct {
	Sensors      Sensors
	Rigs         Rigs
	Trajectories Trajectories
	Records      ImageRecords
	Gnss         GnssRecords
	Keypoints    *Features
	Descriptors  *Features
	Matches      Matches
	Points3d     Points3d
}

// New returns a dataset with the always-present collections initialized.
func New() *Kapture {
	return &Kapture{
		Sensors:      Sensors{},
		Trajectories: Trajectories{},
		Records:      ImageRecords{},
	}
}

// RemoveRigs flattens rig poses out of the trajectories: every rig entry is
// replaced by per-sensor entries composing the sensor's mounting pose with
// the rig pose, and the rig declarations are dropped. Exports to formats
// without a rig concept use this first.
func (k *Kapture) RemoveRigs() {
	for _, ts := range timestamps(k.Trajectories) {
		for _, deviceID := range sensorIDs(k.Trajectories[ts]) {
			members, ok := k.Rigs[deviceID]
			if !ok {
				continue
			}
			rigPose := k.Trajectories[ts][deviceID]
			delete(k.Trajectories[ts], deviceID)
			for _, sensorID := range sensorIDs(members) {
				k.Trajectories.Add(ts, sensorID, members[sensorID].Mul(rigPose))
			}
		}
	}
	k.Rigs = nil
}

// Validate checks referential integrity: trajectories and records may only
// name declared sensors (or rigs), and features and matches may only name
// recorded images.
func (k *Kapture) Validate() error {
	for _, entry := range k.Trajectories.Flatten() {
		if _, ok := k.Sensors[entry.DeviceID]; ok {
			continue
		}
		if _, ok := k.Rigs[entry.DeviceID]; ok {
			continue
		}
		return &DanglingReferenceError{Collection: "trajectories", Kind: "sensor", ID: entry.DeviceID}
	}
	for _, entry := range k.Rigs.Flatten() {
		if _, ok := k.Sensors[entry.SensorID]; !ok {
			return &DanglingReferenceError{Collection: "rigs", Kind: "sensor", ID: entry.SensorID}
		}
	}
	for _, rec := range k.Records.Flatten() {
		if _, ok := k.Sensors[rec.SensorID]; !ok {
			return &DanglingReferenceError{Collection: "image records", Kind: "sensor", ID: rec.SensorID}
		}
	}
	for _, rec := range k.Gnss.Flatten() {
		if _, ok := k.Sensors[rec.SensorID]; !ok {
			return &DanglingReferenceError{Collection: "gnss records", Kind: "sensor", ID: rec.SensorID}
		}
	}
	for _, coll := range []*Features{k.Keypoints, k.Descriptors} {
		if coll == nil {
			continue
		}
		for _, image := range coll.Images() {
			if !k.Records.HasFilename(image) {
				return &DanglingReferenceError{Collection: coll.Name + " features", Kind: "image", ID: image}
			}
		}
	}
	for _, pair := range k.Matches.Pairs() {
		for _, image := range []string{pair.Image1, pair.Image2} {
			if !k.Records.HasFilename(image) {
				return &DanglingReferenceError{Collection: "matches", Kind: "image", ID: image}
			}
		}
	}
	return nil
}

// DanglingReferenceError reports a collection entry naming a sensor or image
// the dataset never declared.
type DanglingReferenceError struct {
	Collection string
	Kind       string
	ID         string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s reference unknown %s %q", e.Collection, e.Kind, e.ID)
}
