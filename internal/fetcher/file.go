package fetcher

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher serves objects from a local directory. Keys never resolve
// outside it: absolute keys and ".." segments stay under the root.
type FileFetcher struct {
	root string
}

// NewFileFetcher creates a FileFetcher rooted at dir. An empty dir means the
// working directory.
func NewFileFetcher(dir string) *FileFetcher {
	if dir == "" {
		dir = "."
	}
	return &FileFetcher{root: dir}
}

func (f *FileFetcher) resolve(key string) string {
	return filepath.Join(f.root, filepath.Clean(string(filepath.Separator)+key))
}

func (f *FileFetcher) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "file: download")
	}
	file, err := os.Open(f.resolve(path))
	if err != nil {
		return nil, eris.Wrapf(err, "file: open %s", path)
	}
	return file, nil
}

func (f *FileFetcher) List(ctx context.Context, prefix string) ([]string, error) {
	root := f.root
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "file: list %s", root)
	}
	return keys, nil
}
