// Package colmap exports kapture datasets into the COLMAP format family: the
// SQLite feature database plus optional plain-text reconstruction and rig
// configuration files.
package colmap

import (
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/kio"
)

// ErrDestinationNotEmpty is returned when the destination database already
// holds rows. Exports never merge into existing data.
var ErrDestinationNotEmpty = errors.New("destination database is not empty")

// ExportOptions tune an export run.
type ExportOptions struct {
	// ReconstructionDir, when set, receives the plain-text reconstruction
	// files next to the database.
	ReconstructionDir string
	// RigPath, when set, receives a COLMAP rig configuration built from the
	// dataset's rig declarations. Rig export is best effort; its failure
	// warns instead of aborting the run.
	RigPath string
	// Force deletes an existing database file instead of exporting into it.
	Force bool
	// Progress observes the keypoint and match writing passes.
	Progress kio.ProgressFunc
}

// Export converts the kapture dataset at kaptureDir into a COLMAP database,
// refusing to touch a database that already has rows. Descriptors are not
// exported: COLMAP's descriptor table implies SIFT, which a kapture dataset
// cannot promise.
func Export(kaptureDir, databasePath string, opts ExportOptions, logger golog.Logger) (err error) {
	if err := os.MkdirAll(filepath.Dir(databasePath), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", databasePath)
	}
	if opts.ReconstructionDir != "" {
		if err := os.MkdirAll(opts.ReconstructionDir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", opts.ReconstructionDir)
		}
	}
	if _, statErr := os.Stat(databasePath); statErr == nil && opts.Force {
		logger.Infow("deleting existing database", "path", databasePath)
		if err := os.Remove(databasePath); err != nil {
			return errors.Wrapf(err, "deleting %s", databasePath)
		}
	}

	logger.Infow("creating colmap database", "path", databasePath)
	db, err := Connect(databasePath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, db.Close())
	}()

	empty, err := db.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return errors.Wrap(ErrDestinationNotEmpty, databasePath)
	}

	logger.Infow("loading kapture dataset", "path", kaptureDir)
	k, err := kio.Read(kaptureDir, logger)
	if err != nil {
		return err
	}
	if err := k.Validate(); err != nil {
		return err
	}

	// COLMAP has no rig concept. Flatten rig poses into per-sensor
	// trajectory entries, keeping the declarations for the rig file.
	rigs := k.Rigs
	if len(rigs) > 0 {
		logger.Infow("flattening rig poses into per-sensor trajectories", "rigs", len(rigs))
		k.RemoveRigs()
	}

	if err := db.Begin(); err != nil {
		return err
	}
	if err := writeDatabase(db, k, kaptureDir, opts.Progress, logger); err != nil {
		return multierr.Combine(err, db.Rollback())
	}
	if err := db.Commit(); err != nil {
		return err
	}

	if opts.ReconstructionDir != "" || opts.RigPath != "" {
		cameraIDs, err := db.CameraIDs(k.Records)
		if err != nil {
			return err
		}
		if opts.ReconstructionDir != "" {
			logger.Infow("writing text reconstruction", "path", opts.ReconstructionDir)
			imageIDs, err := db.ImageIDs()
			if err != nil {
				return err
			}
			if err := writeReconstruction(opts.ReconstructionDir, k, kaptureDir, cameraIDs, imageIDs); err != nil {
				return err
			}
		}
		if opts.RigPath != "" {
			if err := writeRigs(opts.RigPath, rigs, k.Records, cameraIDs); err != nil {
				logger.Warnw("rig export failed", "path", opts.RigPath, "error", err)
			} else {
				logger.Infow("wrote rig configuration", "path", opts.RigPath)
			}
		}
	}
	return nil
}

// writeDatabase fills the database from the dataset: cameras, image records
// with their pose priors, then the keypoint and match blobs.
func writeDatabase(db *Database, k *kapture.Kapture, kaptureDir string, progress kio.ProgressFunc, logger golog.Logger) error {
	cameraIDs := map[string]int64{}
	for _, sensorID := range k.Sensors.IDs() {
		if k.Sensors[sensorID].Type != kapture.SensorTypeCamera {
			continue
		}
		cam, err := k.Sensors.Camera(sensorID)
		if err != nil {
			return err
		}
		model, width, height, params, err := CameraRow(cam)
		if err != nil {
			return err
		}
		id, err := db.AddCamera(model, width, height, params, true)
		if err != nil {
			return err
		}
		cameraIDs[sensorID] = id
	}
	logger.Infow("wrote cameras", "count", len(cameraIDs))

	records := k.Records.Flatten()
	imageIDs := map[string]int64{}
	for _, rec := range records {
		cameraID, ok := cameraIDs[rec.SensorID]
		if !ok {
			return errors.Errorf("image %q was recorded by %q, which is not a camera", rec.Filename, rec.SensorID)
		}
		prior, _ := k.Trajectories.Pose(rec.Timestamp, rec.SensorID)
		id, err := db.AddImage(rec.Filename, cameraID, prior)
		if err != nil {
			return err
		}
		imageIDs[rec.Filename] = id
	}
	logger.Infow("wrote images", "count", len(records))

	if k.Keypoints != nil && k.Keypoints.Len() > 0 {
		images := k.Keypoints.Images()
		logger.Infow("writing keypoints", "type", k.Keypoints.Name, "images", len(images))
		for done, image := range images {
			if progress != nil {
				progress(done+1, len(images))
			}
			m, err := kio.ReadMatrix(kio.KeypointPath(kaptureDir, image), k.Keypoints.DType, k.Keypoints.DSize)
			if err != nil {
				return err
			}
			if m == nil {
				continue
			}
			data, err := matrixFloat32s(m)
			if err != nil {
				return errors.Wrapf(err, "keypoints of %s", image)
			}
			if err := db.AddKeypoints(imageIDs[image], k.Keypoints.DSize, data); err != nil {
				return err
			}
		}
	}

	if len(k.Matches) > 0 {
		pairs := k.Matches.Pairs()
		logger.Infow("writing matches", "pairs", len(pairs))
		for done, pair := range pairs {
			if progress != nil {
				progress(done+1, len(pairs))
			}
			m, err := kio.ReadMatrix(kio.MatchPath(kaptureDir, pair), kapture.Float64, 3)
			if err != nil {
				return err
			}
			if m == nil {
				continue
			}
			indices, err := matchIndices(m)
			if err != nil {
				return errors.Wrapf(err, "matches of %s / %s", pair.Image1, pair.Image2)
			}
			if err := db.AddMatches(imageIDs[pair.Image1], imageIDs[pair.Image2], indices); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchIndices narrows scored match triplets down to their feature index
// pairs, dropping the score column.
func matchIndices(m *tensor.Dense) ([]uint32, error) {
	vals, ok := m.Data().([]float64)
	if !ok {
		return nil, errors.Errorf("match matrix holds %T, want []float64", m.Data())
	}
	out := make([]uint32, 0, 2*(len(vals)/3))
	for i := 0; i+2 < len(vals); i += 3 {
		out = append(out, uint32(vals[i]), uint32(vals[i+1]))
	}
	return out, nil
}

// matrixFloat64s flattens a matrix's backing into float64 values.
func matrixFloat64s(m *tensor.Dense) ([]float64, error) {
	switch data := m.Data().(type) {
	case []float64:
		return data, nil
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []uint32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, errors.Errorf("cannot widen %T elements to float64", data)
	}
}

// matrixFloat32s narrows a matrix's backing to the float32 values the COLMAP
// keypoint table stores.
func matrixFloat32s(m *tensor.Dense) ([]float32, error) {
	vals, err := matrixFloat64s(m)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v)
	}
	return out, nil
}
