package gridjob

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

const tmpSuffix = ".tmp"

// outputSet collects encoded files in memory and commits them together.
type outputSet struct {
	files map[string][]byte
}

func newOutputSet() *outputSet {
	return &outputSet{files: make(map[string][]byte)}
}

func (o *outputSet) add(path string, data []byte) {
	o.files[filepath.Clean(path)] = data
}

// paths returns the output paths in sorted order.
func (o *outputSet) paths() []string {
	out := make([]string, 0, len(o.files))
	for p := range o.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// commit writes every file to a temporary sibling, then renames them into
// place. On failure all temporaries are removed and no final path is
// touched unless a rename itself fails part way.
func (o *outputSet) commit(fsys fsutil.FileSystem) error {
	paths := o.paths()
	var written []string
	cleanup := func() {
		for _, p := range written {
			if err := fsys.Remove(p + tmpSuffix); err != nil {
				monitoring.Logf("[GridJob] remove %s%s: %v", p, tmpSuffix, err)
			}
		}
	}

	for _, p := range paths {
		if dir := filepath.Dir(p); dir != "." {
			if err := fsys.MkdirAll(dir, 0755); err != nil {
				cleanup()
				return fmt.Errorf("%w: create %s: %v", griderr.ErrIO, dir, err)
			}
		}
		// A failed write may still leave a partial temporary behind.
		written = append(written, p)
		if err := fsys.WriteFile(p+tmpSuffix, o.files[p], 0644); err != nil {
			cleanup()
			return fmt.Errorf("%w: write %s: %v", griderr.ErrIO, p+tmpSuffix, err)
		}
	}

	for i, p := range paths {
		if err := fsys.Rename(p+tmpSuffix, p); err != nil {
			written = written[i:]
			cleanup()
			return fmt.Errorf("%w: rename %s: %v", griderr.ErrIO, p, err)
		}
	}
	return nil
}
