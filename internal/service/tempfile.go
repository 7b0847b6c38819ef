package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/imagecodec"
)

// TempFileManager stages uploaded buffers as files for path-based providers
type TempFileManager struct {
	dir string
}

// StagedFiles are temporary copies owned by one call
type StagedFiles struct {
	paths []string
}

// NewTempFileManager creates a manager writing into dir
func NewTempFileManager(dir string) *TempFileManager {
	return &TempFileManager{dir: dir}
}

// Dir returns the staging directory
func (m *TempFileManager) Dir() string {
	return m.dir
}

// Stage writes every upload into the temp directory. If any write fails the
// files staged so far are removed before returning.
func (m *TempFileManager) Stage(uploads ...domain.UploadedImage) (*StagedFiles, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	staged := &StagedFiles{paths: make([]string, 0, len(uploads))}
	for _, up := range uploads {
		role := up.Role
		if role == "" {
			role = "upload"
		}
		ext := imagecodec.ExtensionForMimeType(imagecodec.InferMimeType(up.Filename))
		path := filepath.Join(m.dir, imagecodec.NewFilename(role, -1, ext))

		if err := os.WriteFile(path, up.Data, 0o600); err != nil {
			os.Remove(path)
			staged.Cleanup()
			return nil, fmt.Errorf("failed to stage %s upload: %w", role, err)
		}
		staged.paths = append(staged.paths, path)
	}

	return staged, nil
}

// Paths returns the staged file paths in upload order
func (s *StagedFiles) Paths() []string {
	return s.paths
}

// Cleanup removes every staged file. Missing files are not an error.
func (s *StagedFiles) Cleanup() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
