package opensfm

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/kio"
	"github.com/sfmkit/kapture-go/spatialmath"
)

// ErrDestinationNotEmpty is returned when the destination already holds a
// kapture dataset and the import was not forced.
var ErrDestinationNotEmpty = errors.New("destination already holds a kapture dataset")

// gnssEpsgCode identifies the WGS 84 coordinate system EXIF GPS data uses.
const gnssEpsgCode = "EPSG:4326"

// ImportOptions configure an OpenSfM import.
type ImportOptions struct {
	// Force clears an existing dataset at the destination instead of
	// refusing to touch it.
	Force bool
	// ImageTransfer is how recorded images reach the dataset. Empty
	// defaults to copying.
	ImageTransfer kio.TransferAction
	// Progress, when set, is called as batches of files are processed.
	Progress kio.ProgressFunc
}

// shotIndex resolves image names back to the timestamp and camera their shot
// assigned.
type shotIndex struct {
	timestamps map[string]int64
	cameras    map[string]string
}

// Import converts the OpenSfM project at opensfmDir into a kapture dataset at
// kaptureDir.
//
// Shots become image records and trajectory poses, with capture timestamps
// assigned by document order. Camera declarations translate to the RADIAL
// model, EXIF GPS blocks become GNSS records, feature archives become
// keypoint and descriptor blobs, and pickled match tables become match blobs
// with a constant score column. Triangulated points carry over with their
// colors.
func Import(opensfmDir, kaptureDir string, opts ImportOptions, logger golog.Logger) error {
	if opts.ImageTransfer == "" {
		opts.ImageTransfer = kio.TransferCopy
	}
	if kio.HasKaptureFiles(kaptureDir) {
		if !opts.Force {
			return errors.Wrap(ErrDestinationNotEmpty, kaptureDir)
		}
		logger.Infow("clearing existing dataset", "path", kaptureDir)
		if err := kio.RemoveKaptureFiles(kaptureDir); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(kaptureDir, 0o755); err != nil {
		return errors.Wrap(err, "creating destination")
	}

	rec, err := LoadReconstruction(filepath.Join(opensfmDir, reconstructionFile), logger)
	if err != nil {
		return err
	}

	k := kapture.New()
	cameraIDs := make([]string, 0, len(rec.Cameras))
	for id := range rec.Cameras {
		cameraIDs = append(cameraIDs, id)
	}
	sort.Strings(cameraIDs)
	for _, id := range cameraIDs {
		cam, err := translateCamera(id, rec.Cameras[id])
		if err != nil {
			return err
		}
		k.Sensors.AddCamera(id, cam)
	}

	logger.Infow("importing images and trajectories", "shots", rec.Shots.Len())
	idx := importShots(rec, k)

	if err := kio.TransferFiles(filepath.Join(opensfmDir, "images"), kaptureDir,
		k.Records.Filenames(), opts.ImageTransfer, opts.Progress, logger); err != nil {
		return err
	}

	if err := importGnss(opensfmDir, idx, k, logger); err != nil {
		return err
	}
	if err := importFeatures(opensfmDir, kaptureDir, k, opts.Progress, logger); err != nil {
		return err
	}
	if err := importMatches(opensfmDir, kaptureDir, k, opts.Progress, logger); err != nil {
		return err
	}
	if rec.Points != nil {
		logger.Infow("importing 3D points", "count", len(rec.Points))
		k.Points3d = translatePoints(rec.Points)
	}

	logger.Infow("saving dataset tables", "path", kaptureDir)
	return kio.Write(kaptureDir, k)
}

// importShots turns every shot into an image record and trajectory pose. The
// shot's position in the document is its capture timestamp.
func importShots(rec *Reconstruction, k *kapture.Kapture) *shotIndex {
	idx := &shotIndex{
		timestamps: make(map[string]int64, rec.Shots.Len()),
		cameras:    make(map[string]string, rec.Shots.Len()),
	}
	for i, name := range rec.Shots.Names() {
		shot, _ := rec.Shots.Get(name)
		ts := int64(i)
		k.Records.Add(ts, shot.Camera, name)
		pose := spatialmath.NewPoseTransform(
			spatialmath.RotationVectorToQuat(shot.Rotation), shot.Translation)
		k.Trajectories.Add(ts, shot.Camera, pose)
		idx.timestamps[name] = ts
		idx.cameras[name] = shot.Camera
	}
	return idx
}

// importGnss walks the EXIF sidecar files and turns usable GPS blocks into
// GNSS records. A GNSS sensor is declared per camera that took shots. Files
// without GPS data, and files for images the reconstruction does not know,
// are logged and skipped.
func importGnss(opensfmDir string, idx *shotIndex, k *kapture.Kapture, logger golog.Logger) error {
	exifDir := filepath.Join(opensfmDir, "exif")
	if info, err := os.Stat(exifDir); err != nil || !info.IsDir() {
		return nil
	}
	logger.Infow("importing GNSS records from exif")

	gnssIDs := map[string]string{}
	for _, camID := range idx.cameras {
		gnssIDs[camID] = "GPS_" + camID
	}
	for _, gnssID := range gnssIDs {
		k.Sensors[gnssID] = &kapture.Sensor{Type: kapture.SensorTypeGnss, Params: []string{gnssEpsgCode}}
	}
	k.Gnss = kapture.GnssRecords{}

	it, err := kio.NewFileIterator(exifDir, exifSuffix)
	if err != nil {
		return err
	}
	for {
		rel, ok := it.Next()
		if !ok {
			break
		}
		image := strings.TrimSuffix(rel, exifSuffix)
		ts, known := idx.timestamps[image]
		if !known {
			logger.Warnw("exif data for an image the reconstruction does not know, skipping", "image", image)
			continue
		}
		exif, err := readExifFile(filepath.Join(exifDir, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		if !exif.Gps.usable() {
			logger.Warnw("no GPS data in exif, skipping", "image", image)
			continue
		}
		fix := &kapture.RecordGnss{
			X: *exif.Gps.Longitude,
			Y: *exif.Gps.Latitude,
		}
		if exif.Gps.Altitude != nil {
			fix.Z = *exif.Gps.Altitude
		}
		if exif.Gps.Dop != nil {
			fix.DOP = *exif.Gps.Dop
		}
		k.Gnss.Add(ts, gnssIDs[idx.cameras[image]], fix)
	}
	return nil
}

// importFeatures converts the per-image feature archives into keypoint and
// descriptor blobs. The first archive fixes the dtype and width of each
// collection; later archives must agree.
func importFeatures(opensfmDir, kaptureDir string, k *kapture.Kapture, progress kio.ProgressFunc, logger golog.Logger) error {
	featuresDir := filepath.Join(opensfmDir, "features")
	if info, err := os.Stat(featuresDir); err != nil || !info.IsDir() {
		return nil
	}
	keypointsName, descriptorsName := featureNames(opensfmDir, logger)
	logger.Infow("importing keypoints and descriptors",
		"keypoints", keypointsName, "descriptors", descriptorsName)

	it, err := kio.NewFileIterator(featuresDir, featuresSuffix)
	if err != nil {
		return err
	}
	done := 0
	for {
		rel, ok := it.Next()
		if !ok {
			break
		}
		done++
		if progress != nil {
			progress(done, it.Len())
		}
		image := strings.TrimSuffix(rel, featuresSuffix)
		if !k.Records.HasFilename(image) {
			logger.Warnw("features for an image the reconstruction does not know, skipping", "image", image)
			continue
		}
		points, descriptors, err := readFeaturesFile(filepath.Join(featuresDir, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		if k.Keypoints == nil {
			k.Keypoints = kapture.NewFeatures(keypointsName, points.DType, points.Cols)
		}
		if k.Descriptors == nil {
			k.Descriptors = kapture.NewFeatures(descriptorsName, descriptors.DType, descriptors.Cols)
		}
		if err := k.Keypoints.CheckShape(image, points.DType, points.Cols); err != nil {
			return err
		}
		if err := k.Descriptors.CheckShape(image, descriptors.DType, descriptors.Cols); err != nil {
			return err
		}
		if err := kio.WriteMatrix(kio.KeypointPath(kaptureDir, image), points.DType, points.Data); err != nil {
			return err
		}
		k.Keypoints.Add(image)
		if err := kio.WriteMatrix(kio.DescriptorPath(kaptureDir, image), descriptors.DType, descriptors.Data); err != nil {
			return err
		}
		k.Descriptors.Add(image)
	}
	return nil
}

// importMatches converts the pickled match tables into match blobs. OpenSfM
// stores no match scores, so every pair scores 1. Pairs are normalized to
// lexicographic order, swapping the index columns when the table listed them
// the other way around; a pair seen twice keeps its first table.
func importMatches(opensfmDir, kaptureDir string, k *kapture.Kapture, progress kio.ProgressFunc, logger golog.Logger) error {
	matchesDir := filepath.Join(opensfmDir, "matches")
	if info, err := os.Stat(matchesDir); err != nil || !info.IsDir() {
		return nil
	}
	logger.Infow("importing matches")
	k.Matches = kapture.Matches{}

	it, err := kio.NewFileIterator(matchesDir, matchesSuffix)
	if err != nil {
		return err
	}
	done := 0
	for {
		rel, ok := it.Next()
		if !ok {
			break
		}
		done++
		if progress != nil {
			progress(done, it.Len())
		}
		image1 := strings.TrimSuffix(rel, matchesSuffix)
		table, err := readMatchesFile(filepath.Join(matchesDir, filepath.FromSlash(rel)), image1)
		if err != nil {
			return err
		}
		for _, entry := range table.Entries {
			if !k.Records.HasFilename(table.Image) || !k.Records.HasFilename(entry.Image) {
				logger.Warnw("matches between images the reconstruction does not know, skipping",
					"image1", table.Image, "image2", entry.Image)
				continue
			}
			if k.Matches.Has(table.Image, entry.Image) {
				logger.Debugw("match pair already imported, skipping",
					"image1", table.Image, "image2", entry.Image)
				continue
			}
			scored, err := scoreMatches(table.Image, entry)
			if err != nil {
				return err
			}
			pair := kapture.MakeImagePair(table.Image, entry.Image)
			if err := kio.WriteMatrix(kio.MatchPath(kaptureDir, pair), kapture.Float64, scored); err != nil {
				return err
			}
			k.Matches.Add(table.Image, entry.Image)
		}
	}
	return nil
}

// scoreMatches widens an (N, 2) index array into (N, 3) float64 rows ordered
// for the normalized pair, appending the constant score.
func scoreMatches(image1 string, entry matchEntry) (*tensor.Dense, error) {
	rows, cols, err := entry.Array.Dims()
	if err != nil {
		return nil, errors.Wrapf(err, "matches (%s, %s)", image1, entry.Image)
	}
	if cols != 2 {
		return nil, errors.Errorf("matches (%s, %s) have %d columns, want 2", image1, entry.Image, cols)
	}
	if rows == 0 {
		return nil, nil
	}
	vals, err := entry.Array.Float64s()
	if err != nil {
		return nil, errors.Wrapf(err, "matches (%s, %s)", image1, entry.Image)
	}
	swapped := kapture.MakeImagePair(image1, entry.Image).Image1 != image1
	backing := make([]float64, 0, rows*3)
	for r := 0; r < rows; r++ {
		i1, i2 := vals[r*2], vals[r*2+1]
		if swapped {
			i1, i2 = i2, i1
		}
		backing = append(backing, i1, i2, 1)
	}
	return tensor.New(tensor.WithShape(rows, 3), tensor.WithBacking(backing)), nil
}

// translatePoints flattens the triangulated points, ordered by their ids, so
// a point's row index becomes its id.
func translatePoints(points map[string]*PointSchema) kapture.Points3d {
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make(kapture.Points3d, 0, len(ids))
	for _, id := range ids {
		p := points[id]
		out = append(out, kapture.Point3d{
			Position: r3.Vector{X: p.Coordinates[0], Y: p.Coordinates[1], Z: p.Coordinates[2]},
			Color:    [3]float64{p.Color[0], p.Color[1], p.Color[2]},
		})
	}
	return out
}
