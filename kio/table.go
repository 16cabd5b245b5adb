package kio

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// formatVersion is written at the top of every table file. Readers refuse
// tables declaring a different version.
const formatVersion = "1.0"

const formatHeaderPrefix = "# kapture format: "

// tableWriter writes one CSV table: the format header, a column name
// comment, then rows with comma-space separated fields.
type tableWriter struct {
	f *os.File
	w *bufio.Writer
}

func newTableWriter(path, columns string) (*tableWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %s", path)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(formatHeaderPrefix + formatVersion + "\n# " + columns + "\n"); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "writing header of %s", path), f.Close())
	}
	return &tableWriter{f: f, w: w}, nil
}

func (tw *tableWriter) WriteRow(fields ...string) error {
	if _, err := tw.w.WriteString(strings.Join(fields, ", ") + "\n"); err != nil {
		return errors.Wrapf(err, "writing row to %s", tw.f.Name())
	}
	return nil
}

func (tw *tableWriter) Close() error {
	return multierr.Combine(tw.w.Flush(), tw.f.Close())
}

// readTable parses a table file into trimmed rows, skipping blank lines and
// comments. A format header naming another version is an error.
func readTable(path string) (_ [][]string, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var rows [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if version, ok := strings.CutPrefix(line, formatHeaderPrefix); ok && version != formatVersion {
				return nil, errors.Errorf("%s declares kapture format %q, only %s is supported", path, version, formatVersion)
			}
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", field)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInt(field string) (int64, error) {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q", field)
	}
	return v, nil
}
