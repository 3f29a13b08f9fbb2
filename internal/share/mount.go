// internal/share/mount.go
package share

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrMountUnavailable marks I/O failures against the shared mount.
var ErrMountUnavailable = errors.New("shared mount unavailable")

const inputDir = "images"

// Mount is the file share as seen from this process.
type Mount struct {
	Root string
}

func New(root string) *Mount {
	return &Mount{Root: root}
}

// InputPath is where an inbound file named name is stored.
func (m *Mount) InputPath(name string) string {
	return filepath.Join(m.Root, inputDir, filepath.Base(name))
}

// SaveInput writes r to {root}/images/{basename}, creating directories as
// needed.
func (m *Mount) SaveInput(name string, r io.Reader) (string, error) {
	dst := m.InputPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir: %v", ErrMountUnavailable, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("%w: create: %v", ErrMountUnavailable, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: write: %v", ErrMountUnavailable, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close: %v", ErrMountUnavailable, err)
	}
	return dst, nil
}

// Artifact is one file produced by a job under the output directory.
type Artifact struct {
	// RelPath is slash-separated and relative to the output directory.
	RelPath string
	Path    string
	Size    int64
}

// Artifacts lists every regular file under {root}/{outputDir}, sorted by
// relative path. A missing output directory yields no artifacts.
func (m *Mount) Artifacts(outputDir string) ([]Artifact, error) {
	base := filepath.Join(m.Root, outputDir)
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var out []Artifact
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Artifact{RelPath: filepath.ToSlash(rel), Path: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output dir: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}
