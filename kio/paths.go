// Package kio reads and writes the on-disk form of a kapture dataset:
// versioned CSV tables under sensors/ and reconstruction/, raw binary feature
// arrays next to their index tables, and the recorded image files under
// sensors/records_data/.
package kio

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/sfmkit/kapture-go/kapture"
)

// File suffixes of the binary array files.
const (
	KeypointsSuffix   = ".kpt"
	DescriptorsSuffix = ".desc"
	MatchesSuffix     = ".matches"
)

// overlappingSep splits the two image names inside a match file path.
const overlappingSep = ".overlapping/"

// SensorsPath returns the sensor declaration table of a dataset.
func SensorsPath(root string) string {
	return filepath.Join(root, "sensors", "sensors.txt")
}

// RigsPath returns the rig declaration table.
func RigsPath(root string) string {
	return filepath.Join(root, "sensors", "rigs.txt")
}

// TrajectoriesPath returns the pose table.
func TrajectoriesPath(root string) string {
	return filepath.Join(root, "sensors", "trajectories.txt")
}

// RecordsCameraPath returns the image record table.
func RecordsCameraPath(root string) string {
	return filepath.Join(root, "sensors", "records_camera.txt")
}

// RecordsGnssPath returns the GNSS record table.
func RecordsGnssPath(root string) string {
	return filepath.Join(root, "sensors", "records_gnss.txt")
}

// RecordDataDir returns the directory holding the recorded files themselves.
func RecordDataDir(root string) string {
	return filepath.Join(root, "sensors", "records_data")
}

// RecordDataPath returns where a recorded image lives on disk.
func RecordDataPath(root, image string) string {
	return filepath.Join(RecordDataDir(root), filepath.FromSlash(image))
}

// KeypointsDir returns the directory of keypoint array files.
func KeypointsDir(root string) string {
	return filepath.Join(root, "reconstruction", "keypoints")
}

// KeypointsIndexPath returns the keypoint collection description table.
func KeypointsIndexPath(root string) string {
	return filepath.Join(KeypointsDir(root), "keypoints.txt")
}

// KeypointPath returns the keypoint array file of one image.
func KeypointPath(root, image string) string {
	return filepath.Join(KeypointsDir(root), filepath.FromSlash(image)+KeypointsSuffix)
}

// DescriptorsDir returns the directory of descriptor array files.
func DescriptorsDir(root string) string {
	return filepath.Join(root, "reconstruction", "descriptors")
}

// DescriptorsIndexPath returns the descriptor collection description table.
func DescriptorsIndexPath(root string) string {
	return filepath.Join(DescriptorsDir(root), "descriptors.txt")
}

// DescriptorPath returns the descriptor array file of one image.
func DescriptorPath(root, image string) string {
	return filepath.Join(DescriptorsDir(root), filepath.FromSlash(image)+DescriptorsSuffix)
}

// MatchesDir returns the directory of match array files.
func MatchesDir(root string) string {
	return filepath.Join(root, "reconstruction", "matches")
}

// MatchPath returns the match array file of an image pair.
func MatchPath(root string, pair kapture.ImagePair) string {
	rel := pair.Image1 + overlappingSep + pair.Image2 + MatchesSuffix
	return filepath.Join(MatchesDir(root), filepath.FromSlash(rel))
}

// Points3dPath returns the 3D point table.
func Points3dPath(root string) string {
	return filepath.Join(root, "reconstruction", "points3d.txt")
}

// ImagePairFromPath recovers the two image names from a match file path
// relative to the matches directory.
func ImagePairFromPath(rel string) (kapture.ImagePair, error) {
	if !strings.HasSuffix(rel, MatchesSuffix) {
		return kapture.ImagePair{}, errors.Errorf("%q is not a match file", rel)
	}
	trimmed := strings.TrimSuffix(rel, MatchesSuffix)
	idx := strings.Index(trimmed, overlappingSep)
	if idx < 0 {
		return kapture.ImagePair{}, errors.Errorf("match file %q does not separate its image pair", rel)
	}
	return kapture.ImagePair{
		Image1: trimmed[:idx],
		Image2: trimmed[idx+len(overlappingSep):],
	}, nil
}
