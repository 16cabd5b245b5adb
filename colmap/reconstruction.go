package colmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sfmkit/kapture-go/kapture"
	"github.com/sfmkit/kapture-go/kio"
)

// The text reconstruction file names, fixed by COLMAP.
const (
	camerasFile = "cameras.txt"
	imagesFile  = "images.txt"
	pointsFile  = "points3D.txt"
)

// writeReconstruction lays down the plain-text form of the dataset: the
// camera list, the posed images with their observed keypoints, and the point
// cloud. COLMAP wants all three files even when one is empty.
func writeReconstruction(dir string, k *kapture.Kapture, kaptureDir string, cameraIDs, imageIDs map[string]int64) error {
	if err := writeCamerasText(filepath.Join(dir, camerasFile), k.Sensors, cameraIDs); err != nil {
		return err
	}
	if err := writeImagesText(filepath.Join(dir, imagesFile), k, kaptureDir, cameraIDs, imageIDs); err != nil {
		return err
	}
	return writePointsText(filepath.Join(dir, pointsFile), k.Points3d)
}

func writeCamerasText(path string, sensors kapture.Sensors, cameraIDs map[string]int64) error {
	lines := []string{
		"# Camera list with one line of data per camera:",
		"#   CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]",
		fmt.Sprintf("# Number of cameras: %d", len(cameraIDs)),
	}
	// Cameras were inserted in sorted sensor order, so this walks them in
	// ascending camera id order too.
	for _, sensorID := range sensors.IDs() {
		id, ok := cameraIDs[sensorID]
		if !ok {
			continue
		}
		cam, err := sensors.Camera(sensorID)
		if err != nil {
			return err
		}
		model, width, height, params, err := CameraRow(cam)
		if err != nil {
			return err
		}
		fields := []string{
			strconv.FormatInt(id, 10),
			model.String(),
			strconv.FormatInt(width, 10),
			strconv.FormatInt(height, 10),
		}
		for _, p := range params {
			fields = append(fields, formatFloat(p))
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return writeLines(path, lines)
}

func writeImagesText(path string, k *kapture.Kapture, kaptureDir string, cameraIDs, imageIDs map[string]int64) error {
	var body []string
	var observations int
	for _, rec := range k.Records.Flatten() {
		pose, ok := k.Trajectories.Pose(rec.Timestamp, rec.SensorID)
		if !ok {
			// Text reconstructions only describe localized images.
			continue
		}
		q, t := pose.Rotation, pose.Translation
		body = append(body, strings.Join([]string{
			strconv.FormatInt(imageIDs[rec.Filename], 10),
			formatFloat(q.Real), formatFloat(q.Imag), formatFloat(q.Jmag), formatFloat(q.Kmag),
			formatFloat(t.X), formatFloat(t.Y), formatFloat(t.Z),
			strconv.FormatInt(cameraIDs[rec.SensorID], 10),
			rec.Filename,
		}, " "))

		points2d, count, err := points2dLine(k, kaptureDir, rec.Filename)
		if err != nil {
			return err
		}
		body = append(body, points2d)
		observations += count
	}

	posed := len(body) / 2
	mean := 0.0
	if posed > 0 {
		mean = float64(observations) / float64(posed)
	}
	lines := []string{
		"# Image list with two lines of data per image:",
		"#   IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME",
		"#   POINTS2D[] as (X, Y, POINT3D_ID)",
		fmt.Sprintf("# Number of images: %d, mean observations per image: %s", posed, formatFloat(mean)),
	}
	return writeLines(path, append(lines, body...))
}

// points2dLine renders an image's keypoints as (x, y, point3d id) triplets.
// The dataset keeps no keypoint to point associations, so every triplet gets
// the "unobserved" id -1.
func points2dLine(k *kapture.Kapture, kaptureDir, image string) (string, int, error) {
	if k.Keypoints == nil || !k.Keypoints.Has(image) {
		return "", 0, nil
	}
	m, err := kio.ReadMatrix(kio.KeypointPath(kaptureDir, image), k.Keypoints.DType, k.Keypoints.DSize)
	if err != nil {
		return "", 0, err
	}
	if m == nil {
		return "", 0, nil
	}
	vals, err := matrixFloat64s(m)
	if err != nil {
		return "", 0, errors.Wrapf(err, "keypoints of %s", image)
	}
	rows := len(vals) / k.Keypoints.DSize
	fields := make([]string, 0, 3*rows)
	for i := 0; i < rows; i++ {
		x, y := vals[i*k.Keypoints.DSize], vals[i*k.Keypoints.DSize+1]
		fields = append(fields, formatFloat(x), formatFloat(y), "-1")
	}
	return strings.Join(fields, " "), rows, nil
}

func writePointsText(path string, points kapture.Points3d) error {
	lines := []string{
		"# 3D point list with one line of data per point:",
		"#   POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)",
		fmt.Sprintf("# Number of points: %d, mean track length: 0", len(points)),
	}
	// A point's id is its row index. Reprojection errors and tracks are not
	// part of the dataset; COLMAP reads 0 and an empty track as "unknown".
	for i, p := range points {
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(i),
			formatFloat(p.Position.X), formatFloat(p.Position.Y), formatFloat(p.Position.Z),
			strconv.Itoa(int(p.Color[0])), strconv.Itoa(int(p.Color[1])), strconv.Itoa(int(p.Color[2])),
			"0",
		}, " "))
	}
	return writeLines(path, lines)
}

func writeLines(path string, lines []string) error {
	data := strings.Join(lines, "\n") + "\n"
	return errors.Wrapf(os.WriteFile(path, []byte(data), 0o644), "writing %s", path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
