package colmap

import (
	"database/sql"
	"encoding/binary"
	"math"

	// Registers the sqlite3 driver the COLMAP database file needs.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/spatialmath"
)

// MaxImageID is the largest image id COLMAP accepts. Match rows key on
// pair_id = image_id1 * MaxImageID + image_id2.
const MaxImageID = 2147483647

// schema is the COLMAP feature database layout. COLMAP itself reads and
// writes these tables, so the definitions must not drift from its own.
const schema = `
CREATE TABLE IF NOT EXISTS cameras (
	camera_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	model INTEGER NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	params BLOB,
	prior_focal_length INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS images (
	image_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	name TEXT NOT NULL UNIQUE,
	camera_id INTEGER NOT NULL,
	prior_qw REAL,
	prior_qx REAL,
	prior_qy REAL,
	prior_qz REAL,
	prior_tx REAL,
	prior_ty REAL,
	prior_tz REAL,
	CONSTRAINT image_id_check CHECK(image_id >= 0 and image_id < 2147483647),
	FOREIGN KEY(camera_id) REFERENCES cameras(camera_id));

CREATE TABLE IF NOT EXISTS keypoints (
	image_id INTEGER PRIMARY KEY NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	data BLOB,
	FOREIGN KEY(image_id) REFERENCES images(image_id) ON DELETE CASCADE);

CREATE TABLE IF NOT EXISTS descriptors (
	image_id INTEGER PRIMARY KEY NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	data BLOB,
	FOREIGN KEY(image_id) REFERENCES images(image_id) ON DELETE CASCADE);

CREATE TABLE IF NOT EXISTS matches (
	pair_id INTEGER PRIMARY KEY NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	data BLOB);

CREATE TABLE IF NOT EXISTS two_view_geometries (
	pair_id INTEGER PRIMARY KEY NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	data BLOB,
	config INTEGER NOT NULL,
	F BLOB,
	E BLOB,
	H BLOB,
	qvec BLOB,
	tvec BLOB);

CREATE UNIQUE INDEX IF NOT EXISTS index_name ON images(name);
`

// tableNames lists every table of the schema, for the emptiness check.
var tableNames = []string{"cameras", "images", "keypoints", "descriptors", "matches", "two_view_geometries"}

// Database is an open COLMAP feature database. Writes go through an explicit
// transaction (Begin, the Add methods, Commit) so an aborted export leaves
// the file empty instead of half filled.
type Database struct {
	db *sql.DB
	tx *sql.Tx
}

// Connect opens the database file, creating it and any missing tables.
func Connect(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "initializing %s", path), db.Close())
	}
	return &Database{db: db}, nil
}

// Close rolls back any open transaction and closes the database.
func (d *Database) Close() error {
	var err error
	if d.tx != nil {
		err = d.tx.Rollback()
		d.tx = nil
	}
	return multierr.Combine(err, d.db.Close())
}

// Begin opens the transaction the Add methods will execute in.
func (d *Database) Begin() error {
	if d.tx != nil {
		return errors.New("a transaction is already open")
	}
	tx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	d.tx = tx
	return nil
}

// Commit makes the transaction's rows permanent.
func (d *Database) Commit() error {
	if d.tx == nil {
		return errors.New("no open transaction")
	}
	err := d.tx.Commit()
	d.tx = nil
	return errors.Wrap(err, "committing transaction")
}

// Rollback discards the open transaction, if any.
func (d *Database) Rollback() error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback()
	d.tx = nil
	return errors.Wrap(err, "rolling back transaction")
}

// execer is the subset of sql.DB and sql.Tx the insert statements need.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// writer routes statements through the open transaction when there is one.
func (d *Database) writer() execer {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// IsEmpty reports whether every table of the database is empty.
func (d *Database) IsEmpty() (bool, error) {
	for _, table := range tableNames {
		var count int
		if err := d.db.QueryRow("SELECT count(*) FROM " + table).Scan(&count); err != nil {
			return false, errors.Wrapf(err, "counting %s rows", table)
		}
		if count > 0 {
			return false, nil
		}
	}
	return true, nil
}

// AddCamera inserts one camera row and returns its assigned id. priorFocal
// marks the focal length as calibrated rather than guessed.
func (d *Database) AddCamera(model Model, width, height int64, params []float64, priorFocal bool) (int64, error) {
	if want := model.ParamCount(); len(params) != want {
		return 0, errors.Errorf("model %s wants %d parameters, got %d", model, want, len(params))
	}
	prior := 0
	if priorFocal {
		prior = 1
	}
	res, err := d.writer().Exec(
		`INSERT INTO cameras (model, width, height, params, prior_focal_length) VALUES (?, ?, ?, ?, ?)`,
		int64(model), width, height, float64Blob(params), prior,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "storing %s camera", model)
	}
	id, err := res.LastInsertId()
	return id, errors.Wrapf(err, "storing %s camera", model)
}

// AddImage inserts one image row and returns its assigned id. A non-nil pose
// becomes the image's prior, NULLs otherwise.
func (d *Database) AddImage(name string, cameraID int64, prior *spatialmath.PoseTransform) (int64, error) {
	args := []interface{}{name, cameraID, nil, nil, nil, nil, nil, nil, nil}
	if prior != nil {
		q, t := prior.Rotation, prior.Translation
		args = []interface{}{name, cameraID, q.Real, q.Imag, q.Jmag, q.Kmag, t.X, t.Y, t.Z}
	}
	res, err := d.writer().Exec(
		`INSERT INTO images (name, camera_id, prior_qw, prior_qx, prior_qy, prior_qz, prior_tx, prior_ty, prior_tz)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "storing image %q", name)
	}
	id, err := res.LastInsertId()
	return id, errors.Wrapf(err, "storing image %q", name)
}

// AddKeypoints stores an image's keypoints as a row-major float32 blob.
// COLMAP reads keypoint rows of 2 (x, y), 4 (+scale, orientation) or 6
// (+affine shape) columns.
func (d *Database) AddKeypoints(imageID int64, cols int, data []float32) error {
	switch cols {
	case 2, 4, 6:
	default:
		return errors.Errorf("keypoints are %d wide, colmap stores rows of 2, 4 or 6", cols)
	}
	if len(data)%cols != 0 {
		return errors.Errorf("%d keypoint values do not fill rows of %d", len(data), cols)
	}
	_, err := d.writer().Exec(
		`INSERT INTO keypoints (image_id, rows, cols, data) VALUES (?, ?, ?, ?)`,
		imageID, len(data)/cols, cols, float32Blob(data),
	)
	return errors.Wrapf(err, "storing keypoints of image %d", imageID)
}

// AddDescriptors stores an image's descriptors as a row-major byte blob.
func (d *Database) AddDescriptors(imageID int64, cols int, data []uint8) error {
	if cols <= 0 || len(data)%cols != 0 {
		return errors.Errorf("%d descriptor values do not fill rows of %d", len(data), cols)
	}
	_, err := d.writer().Exec(
		`INSERT INTO descriptors (image_id, rows, cols, data) VALUES (?, ?, ?, ?)`,
		imageID, len(data)/cols, cols, append([]byte(nil), data...),
	)
	return errors.Wrapf(err, "storing descriptors of image %d", imageID)
}

// AddMatches stores the feature index pairs matched between two images, given
// row major as (index in image 1, index in image 2) pairs. The row is keyed
// on the lower image id first; when the given ids arrive swapped, the columns
// swap with them.
func (d *Database) AddMatches(imageID1, imageID2 int64, indices []uint32) error {
	if len(indices)%2 != 0 {
		return errors.Errorf("match indices come in pairs, got %d values", len(indices))
	}
	if imageID1 > imageID2 {
		swapped := make([]uint32, len(indices))
		for i := 0; i < len(indices); i += 2 {
			swapped[i], swapped[i+1] = indices[i+1], indices[i]
		}
		indices = swapped
	}
	_, err := d.writer().Exec(
		`INSERT INTO matches (pair_id, rows, cols, data) VALUES (?, ?, ?, ?)`,
		PairID(imageID1, imageID2), len(indices)/2, 2, uint32Blob(indices),
	)
	return errors.Wrapf(err, "storing matches of images %d and %d", imageID1, imageID2)
}

// PairID packs two image ids into the match table key, lower id first.
func PairID(imageID1, imageID2 int64) int64 {
	if imageID1 > imageID2 {
		imageID1, imageID2 = imageID2, imageID1
	}
	return imageID1*MaxImageID + imageID2
}

// SplitPairID unpacks a match table key back into its image ids.
func SplitPairID(pairID int64) (int64, int64) {
	return pairID / MaxImageID, pairID % MaxImageID
}

// CameraIDs maps each recorded sensor to its camera id by joining the image
// rows back through the given record table.
func (d *Database) CameraIDs(records kapture.ImageRecords) (map[string]int64, error) {
	byImage := map[string]int64{}
	rows, err := d.db.Query(`SELECT name, camera_id FROM images`)
	if err != nil {
		return nil, errors.Wrap(err, "querying image camera ids")
	}
	defer utils.UncheckedErrorFunc(rows.Close)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, errors.Wrap(err, "scanning image row")
		}
		byImage[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying image camera ids")
	}

	out := map[string]int64{}
	for _, rec := range records.Flatten() {
		if id, ok := byImage[rec.Filename]; ok {
			out[rec.SensorID] = id
		}
	}
	return out, nil
}

// ImageIDs maps each stored image name to its image id.
func (d *Database) ImageIDs() (map[string]int64, error) {
	rows, err := d.db.Query(`SELECT name, image_id FROM images`)
	if err != nil {
		return nil, errors.Wrap(err, "querying image ids")
	}
	defer utils.UncheckedErrorFunc(rows.Close)
	out := map[string]int64{}
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, errors.Wrap(err, "scanning image row")
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying image ids")
	}
	return out, nil
}

func float64Blob(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func float32Blob(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func uint32Blob(vals []uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
