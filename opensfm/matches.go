package opensfm

import (
	"compress/gzip"
	"os"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// matchesSuffix marks OpenSfM match tables under matches/.
const matchesSuffix = "_matches.pkl.gz"

// matchTable holds one image's matches against its candidate images, in the
// order the table listed them.
type matchTable struct {
	Image   string
	Entries []matchEntry
}

// matchEntry pairs a candidate image with the (N, 2) array of keypoint index
// pairs matching it.
type matchEntry struct {
	Image string
	Array *npArray
}

// readMatchesFile unpickles one gzipped match table.
func readMatchesFile(path, image string) (*matchTable, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "opening match table")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	defer utils.UncheckedErrorFunc(gz.Close)

	u := pickle.NewUnpickler(gz)
	u.FindClass = findNumpyClass
	result, err := u.Load()
	if err != nil {
		return nil, errors.Wrapf(err, "unpickling %s", path)
	}
	dict, ok := result.(*types.Dict)
	if !ok {
		return nil, errors.Errorf("%s holds a %T, want a dict", path, result)
	}

	table := &matchTable{Image: image, Entries: make([]matchEntry, 0, dict.Len())}
	for _, entry := range *dict {
		other, ok := entry.Key.(string)
		if !ok {
			return nil, errors.Errorf("%s is keyed by %T, want image names", path, entry.Key)
		}
		arr, ok := entry.Value.(*npArray)
		if !ok {
			return nil, errors.Errorf("%s entry %q holds a %T, want an ndarray", path, other, entry.Value)
		}
		table.Entries = append(table.Entries, matchEntry{Image: other, Array: arr})
	}
	return table, nil
}
