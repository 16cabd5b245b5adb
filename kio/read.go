package kio

import (
	"io/fs"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/spatialmath"
)

// Read loads a dataset from disk. The sensors table is required; every other
// collection is optional and left nil or empty when absent. Feature and match
// registries are rebuilt from the binary array files actually present.
func Read(root string, logger golog.Logger) (*kapture.Kapture, error) {
	k := kapture.New()

	sensors, err := readSensors(SensorsPath(root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Errorf("%s is not a kapture dataset: no sensors table", root)
		}
		return nil, err
	}
	k.Sensors = sensors

	rigs, err := readRigs(RigsPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	k.Rigs = rigs

	trajectories, err := readTrajectories(TrajectoriesPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if trajectories != nil {
		k.Trajectories = trajectories
	}

	records, err := readImageRecords(RecordsCameraPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if records != nil {
		k.Records = records
	}

	gnss, err := readGnssRecords(RecordsGnssPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	k.Gnss = gnss

	k.Keypoints, err = readFeatures(KeypointsIndexPath(root), KeypointsDir(root), KeypointsSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	k.Descriptors, err = readFeatures(DescriptorsIndexPath(root), DescriptorsDir(root), DescriptorsSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	k.Matches, err = readMatches(MatchesDir(root))
	if err != nil {
		return nil, err
	}

	k.Points3d, err = readPoints3d(Points3dPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	logger.Debugw("loaded kapture dataset",
		"root", root,
		"sensors", len(k.Sensors),
		"trajectories", len(k.Trajectories.Flatten()),
		"images", len(k.Records.Flatten()),
		"gnss", len(k.Gnss.Flatten()),
		"matches", len(k.Matches),
		"points", len(k.Points3d),
	)
	return k, nil
}

func readSensors(path string) (kapture.Sensors, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	sensors := kapture.Sensors{}
	for _, row := range rows {
		if len(row) < 3 {
			return nil, errors.Errorf("%s: sensor row %v is missing fields", path, row)
		}
		sensors[row[0]] = &kapture.Sensor{
			Name:   row[1],
			Type:   kapture.SensorType(row[2]),
			Params: row[3:],
		}
	}
	return sensors, nil
}

// parsePoseFields turns qw, qx, qy, qz, tx, ty, tz fields into a pose.
func parsePoseFields(fields []string) (*spatialmath.PoseTransform, error) {
	vals, err := parseFloats(fields)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPoseTransform(
		quat.Number{Real: vals[0], Imag: vals[1], Jmag: vals[2], Kmag: vals[3]},
		r3.Vector{X: vals[4], Y: vals[5], Z: vals[6]},
	), nil
}

func readRigs(path string) (kapture.Rigs, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	rigs := kapture.Rigs{}
	for _, row := range rows {
		if len(row) != 9 {
			return nil, errors.Errorf("%s: rig row %v is missing fields", path, row)
		}
		pose, err := parsePoseFields(row[2:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: rig row %v", path, row)
		}
		rigs.Add(row[0], row[1], pose)
	}
	return rigs, nil
}

func readTrajectories(path string) (kapture.Trajectories, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	trajectories := kapture.Trajectories{}
	for _, row := range rows {
		if len(row) != 9 {
			return nil, errors.Errorf("%s: trajectory row %v is missing fields", path, row)
		}
		ts, err := parseInt(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: trajectory row %v", path, row)
		}
		pose, err := parsePoseFields(row[2:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: trajectory row %v", path, row)
		}
		trajectories.Add(ts, row[1], pose)
	}
	return trajectories, nil
}

func readImageRecords(path string) (kapture.ImageRecords, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	records := kapture.ImageRecords{}
	for _, row := range rows {
		if len(row) != 3 {
			return nil, errors.Errorf("%s: image record row %v is missing fields", path, row)
		}
		ts, err := parseInt(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: image record row %v", path, row)
		}
		records.Add(ts, row[1], row[2])
	}
	return records, nil
}

func readGnssRecords(path string) (kapture.GnssRecords, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	records := kapture.GnssRecords{}
	for _, row := range rows {
		if len(row) != 7 {
			return nil, errors.Errorf("%s: gnss row %v is missing fields", path, row)
		}
		ts, err := parseInt(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: gnss row %v", path, row)
		}
		vals, err := parseFloats(row[2:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: gnss row %v", path, row)
		}
		records.Add(ts, row[1], &kapture.RecordGnss{
			X: vals[0], Y: vals[1], Z: vals[2],
			UTC: int64(vals[3]), DOP: vals[4],
		})
	}
	return records, nil
}

func readFeatures(indexPath, dir, suffix string) (*kapture.Features, error) {
	rows, err := readTable(indexPath)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 || len(rows[0]) != 3 {
		return nil, errors.Errorf("%s: want a single name, dtype, dsize row", indexPath)
	}
	dtype, err := kapture.ParseDType(rows[0][1])
	if err != nil {
		return nil, errors.Wrapf(err, "%s", indexPath)
	}
	dsize, err := parseInt(rows[0][2])
	if err != nil {
		return nil, errors.Wrapf(err, "%s", indexPath)
	}
	features := kapture.NewFeatures(rows[0][0], dtype, int(dsize))

	it, err := NewFileIterator(dir, suffix)
	if err != nil {
		return nil, err
	}
	for {
		rel, ok := it.Next()
		if !ok {
			break
		}
		features.Add(rel[:len(rel)-len(suffix)])
	}
	return features, nil
}

func readMatches(dir string) (kapture.Matches, error) {
	it, err := NewFileIterator(dir, MatchesSuffix)
	if err != nil {
		return nil, err
	}
	if it.Len() == 0 {
		return nil, nil
	}
	matches := kapture.Matches{}
	for {
		rel, ok := it.Next()
		if !ok {
			break
		}
		pair, err := ImagePairFromPath(rel)
		if err != nil {
			return nil, err
		}
		matches.Add(pair.Image1, pair.Image2)
	}
	return matches, nil
}

func readPoints3d(path string) (kapture.Points3d, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	points := make(kapture.Points3d, 0, len(rows))
	for _, row := range rows {
		if len(row) != 6 {
			return nil, errors.Errorf("%s: point row %v is missing fields", path, row)
		}
		vals, err := parseFloats(row)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: point row %v", path, row)
		}
		points = append(points, kapture.Point3d{
			Position: r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]},
			Color:    [3]float64{vals[3], vals[4], vals[5]},
		})
	}
	return points, nil
}
