package opensfm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// configFile is the project configuration, of which only the feature detector
// choice matters here.
const configFile = "config.yaml"

type projectConfig struct {
	FeatureType string `yaml:"feature_type"`
}

// featureNames returns what to call the keypoint and descriptor collections,
// derived from the project's feature detector. OpenSfM's default HAHOG
// detector pairs Hessian-Affine keypoints with HOG descriptors; any other
// detector names both collections after itself.
func featureNames(dir string, logger golog.Logger) (keypointsName, descriptorsName string) {
	const defaultKeypoints, defaultDescriptors = "HessianAffine", "HOG"
	data, err := os.ReadFile(filepath.Join(dir, configFile)) //nolint:gosec
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnw("cannot read project config, assuming HAHOG features", "error", err)
		}
		return defaultKeypoints, defaultDescriptors
	}
	var cfg projectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warnw("cannot parse project config, assuming HAHOG features",
			"error", errors.Wrap(err, configFile))
		return defaultKeypoints, defaultDescriptors
	}
	switch strings.ToUpper(cfg.FeatureType) {
	case "", "HAHOG":
		return defaultKeypoints, defaultDescriptors
	default:
		return cfg.FeatureType, cfg.FeatureType
	}
}
