package kio

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sfmkit/kapture-go/kapture"
)

// Write lays a dataset's tables down under root. Binary feature arrays and
// recorded images are written separately (WriteMatrix, TransferFiles); this
// writes everything describing them. Collections that are empty or nil get
// no file.
func Write(root string, k *kapture.Kapture) error {
	if err := writeSensors(SensorsPath(root), k.Sensors); err != nil {
		return err
	}
	if len(k.Rigs) > 0 {
		if err := writeRigs(RigsPath(root), k.Rigs); err != nil {
			return err
		}
	}
	if len(k.Trajectories) > 0 {
		if err := writeTrajectories(TrajectoriesPath(root), k.Trajectories); err != nil {
			return err
		}
	}
	if len(k.Records) > 0 {
		if err := writeImageRecords(RecordsCameraPath(root), k.Records); err != nil {
			return err
		}
	}
	if len(k.Gnss) > 0 {
		if err := writeGnssRecords(RecordsGnssPath(root), k.Gnss); err != nil {
			return err
		}
	}
	if k.Keypoints != nil {
		if err := writeFeatureIndex(KeypointsIndexPath(root), k.Keypoints); err != nil {
			return err
		}
	}
	if k.Descriptors != nil {
		if err := writeFeatureIndex(DescriptorsIndexPath(root), k.Descriptors); err != nil {
			return err
		}
	}
	if len(k.Points3d) > 0 {
		if err := writePoints3d(Points3dPath(root), k.Points3d); err != nil {
			return err
		}
	}
	return nil
}

// HasKaptureFiles reports whether root already holds dataset files.
func HasKaptureFiles(root string) bool {
	for _, dir := range []string{"sensors", "reconstruction"} {
		if _, err := os.Stat(filepath.Join(root, dir)); err == nil {
			return true
		}
	}
	return false
}

// RemoveKaptureFiles deletes the dataset files under root, leaving anything
// else in the directory alone.
func RemoveKaptureFiles(root string) error {
	for _, dir := range []string{"sensors", "reconstruction"} {
		if err := os.RemoveAll(filepath.Join(root, dir)); err != nil {
			return errors.Wrapf(err, "removing %s", dir)
		}
	}
	return nil
}

func writeSensors(path string, sensors kapture.Sensors) (err error) {
	tw, err := newTableWriter(path, "sensor_device_id, name, sensor_type, [sensor_params]+")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, id := range sensors.IDs() {
		s := sensors[id]
		fields := append([]string{id, s.Name, string(s.Type)}, s.Params...)
		if err := tw.WriteRow(fields...); err != nil {
			return err
		}
	}
	return nil
}

func writeRigs(path string, rigs kapture.Rigs) (err error) {
	tw, err := newTableWriter(path, "rig_device_id, sensor_device_id, qw, qx, qy, qz, tx, ty, tz")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, entry := range rigs.Flatten() {
		q, tr := entry.Pose.Rotation, entry.Pose.Translation
		if err := tw.WriteRow(entry.RigID, entry.SensorID,
			formatFloat(q.Real), formatFloat(q.Imag), formatFloat(q.Jmag), formatFloat(q.Kmag),
			formatFloat(tr.X), formatFloat(tr.Y), formatFloat(tr.Z)); err != nil {
			return err
		}
	}
	return nil
}

func writeTrajectories(path string, trajectories kapture.Trajectories) (err error) {
	tw, err := newTableWriter(path, "timestamp, device_id, qw, qx, qy, qz, tx, ty, tz")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, entry := range trajectories.Flatten() {
		q, tr := entry.Pose.Rotation, entry.Pose.Translation
		if err := tw.WriteRow(formatInt(entry.Timestamp), entry.DeviceID,
			formatFloat(q.Real), formatFloat(q.Imag), formatFloat(q.Jmag), formatFloat(q.Kmag),
			formatFloat(tr.X), formatFloat(tr.Y), formatFloat(tr.Z)); err != nil {
			return err
		}
	}
	return nil
}

func writeImageRecords(path string, records kapture.ImageRecords) (err error) {
	tw, err := newTableWriter(path, "timestamp, device_id, image_path")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, rec := range records.Flatten() {
		if err := tw.WriteRow(formatInt(rec.Timestamp), rec.SensorID, rec.Filename); err != nil {
			return err
		}
	}
	return nil
}

func writeGnssRecords(path string, records kapture.GnssRecords) (err error) {
	tw, err := newTableWriter(path, "timestamp, device_id, x, y, z, utc, dop")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, rec := range records.Flatten() {
		if err := tw.WriteRow(formatInt(rec.Timestamp), rec.SensorID,
			formatFloat(rec.Fix.X), formatFloat(rec.Fix.Y), formatFloat(rec.Fix.Z),
			formatInt(rec.Fix.UTC), formatFloat(rec.Fix.DOP)); err != nil {
			return err
		}
	}
	return nil
}

func writeFeatureIndex(path string, features *kapture.Features) (err error) {
	tw, err := newTableWriter(path, "name, dtype, dsize")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	return tw.WriteRow(features.Name, string(features.DType), formatInt(int64(features.DSize)))
}

func writePoints3d(path string, points kapture.Points3d) (err error) {
	tw, err := newTableWriter(path, "X, Y, Z, R, G, B")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tw.Close())
	}()
	for _, p := range points {
		if err := tw.WriteRow(
			formatFloat(p.Position.X), formatFloat(p.Position.Y), formatFloat(p.Position.Z),
			formatFloat(p.Color[0]), formatFloat(p.Color[1]), formatFloat(p.Color[2])); err != nil {
			return err
		}
	}
	return nil
}
