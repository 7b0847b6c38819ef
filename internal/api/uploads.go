package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// uploadFS serves regular files from the upload root. Directories are never
// listed and the staging directory is not served at all.
type uploadFS struct {
	fs     http.FileSystem
	hidden string
}

func newUploadFS(uploadDir, tempDir string) uploadFS {
	fsys := uploadFS{fs: http.Dir(uploadDir)}
	if rel, err := filepath.Rel(uploadDir, tempDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		fsys.hidden = "/" + filepath.ToSlash(rel)
	}
	return fsys
}

func (u uploadFS) Open(name string) (http.File, error) {
	name = path.Clean("/" + name)
	if u.hidden != "" && (name == u.hidden || strings.HasPrefix(name, u.hidden+"/")) {
		return nil, os.ErrNotExist
	}

	f, err := u.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
