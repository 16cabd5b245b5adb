package kio

import (
	"io"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// TransferAction is how recorded image files move from a source project into
// the dataset's records_data directory.
type TransferAction string

// The supported transfer strategies.
const (
	TransferSkip TransferAction = "skip"
	TransferCopy TransferAction = "copy"
	TransferMove TransferAction = "move"
	TransferLink TransferAction = "link"
)

// ParseTransferAction parses a transfer strategy name.
func ParseTransferAction(s string) (TransferAction, error) {
	switch TransferAction(s) {
	case TransferSkip, TransferCopy, TransferMove, TransferLink:
		return TransferAction(s), nil
	}
	return "", errors.Errorf("unknown image transfer action %q", s)
}

// TransferFiles brings the named image files from srcDir into the dataset at
// root. Sources that do not exist are logged and skipped so one missing
// image does not abandon an otherwise intact conversion.
func TransferFiles(srcDir, root string, filenames []string, action TransferAction, progress ProgressFunc, logger golog.Logger) error {
	if action == TransferSkip {
		return nil
	}
	for i, filename := range filenames {
		src := filepath.Join(srcDir, filepath.FromSlash(filename))
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				logger.Warnw("image file missing from source, skipping", "path", src)
				continue
			}
			return errors.Wrapf(err, "checking %s", src)
		}
		dst := RecordDataPath(root, filename)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return errors.Wrapf(err, "creating directory for %s", dst)
		}
		var err error
		switch action {
		case TransferCopy:
			err = copyFile(src, dst)
		case TransferMove:
			err = os.Rename(src, dst)
		case TransferLink:
			err = linkFile(src, dst)
		case TransferSkip:
		}
		if err != nil {
			return errors.Wrapf(err, "transferring %s", filename)
		}
		if progress != nil {
			progress(i+1, len(filenames))
		}
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	//nolint:gosec
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(in.Close)

	//nolint:gosec
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}

// linkFile symlinks with an absolute target so the dataset keeps working when
// opened from another working directory.
func linkFile(src, dst string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(abs, dst)
}
