package rhi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"
)

// FileSystem is the file access capability handed to devices for pipeline
// cache persistence. Missing files are reported with an error matching
// fs.ErrNotExist.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// hackpadFileSystem adapts a hackpadfs file system.
type hackpadFileSystem struct {
	fsys hackpadfs.FS
}

// NewHackpadFileSystem wraps fsys. Names are slash separated and relative
// to the root of fsys.
func NewHackpadFileSystem(fsys hackpadfs.FS) FileSystem {
	return hackpadFileSystem{fsys: fsys}
}

func (h hackpadFileSystem) ReadFile(name string) ([]byte, error) {
	f, err := hackpadfs.OpenFile(h.fsys, cleanName(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h hackpadFileSystem) WriteFile(name string, data []byte) error {
	name = cleanName(name)
	if dir := path.Dir(name); dir != "." {
		if err := hackpadfs.MkdirAll(h.fsys, dir, 0o755); err != nil {
			return err
		}
	}
	f, err := hackpadfs.OpenFile(h.fsys, name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w, ok := f.(io.Writer)
	if !ok {
		_ = f.Close()
		return fmt.Errorf("rhi: %s: %w", name, hackpadfs.ErrNotImplemented)
	}
	if _, err := w.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
}

// dirFileSystem reads and writes host files below a directory.
type dirFileSystem struct {
	dir string
}

// DirFileSystem returns a FileSystem rooted at dir on the host.
func DirFileSystem(dir string) FileSystem {
	return dirFileSystem{dir: dir}
}

func (d dirFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(d.path(name))
}

func (d dirFileSystem) WriteFile(name string, data []byte) error {
	p := d.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (d dirFileSystem) path(name string) string {
	return filepath.Join(d.dir, filepath.FromSlash(cleanName(name)))
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
