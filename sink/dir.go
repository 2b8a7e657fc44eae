// Package sink holds the places downloaded files can be saved to.
package sink

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
)

// ErrName is returned for names that would escape the sink's directory
var ErrName = errors.New("invalid file name")

// Dir saves files into a directory. Names are flattened to their base so
// nothing is written outside of Path, and files are replaced atomically.
type Dir struct {
	Path string
	Perm os.FileMode
}

func (d Dir) Save(ctx context.Context, name string, p job.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := d.mapPath(name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "creating save directory")
	}

	tmp, err := ioutil.TempFile(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(p.Data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpPath, d.perm())
	}
	if err == nil {
		err = os.Rename(tmpPath, dest)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "saving %s", name)
	}
	return nil
}

func (d Dir) mapPath(name string) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", errors.Wrapf(ErrName, "%q", name)
	}
	root := d.Path
	if root == "" {
		root = "."
	}
	return filepath.Join(root, base), nil
}

func (d Dir) perm() os.FileMode {
	if d.Perm == 0 {
		return 0644
	}
	return d.Perm
}
