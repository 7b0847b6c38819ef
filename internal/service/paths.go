package service

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/basel-ax/vybex/internal/domain"
)

// PublicUploadPrefix is the URL prefix under which the upload root is served
const PublicUploadPrefix = "/uploads/"

// ResolveUploadPath maps a public "/uploads/..." URL, a path relative to the
// upload root, or an absolute path inside it to a local file path. Anything
// resolving outside uploadDir is rejected.
func ResolveUploadPath(uploadDir, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrInputNotFound)
	}

	root, err := filepath.Abs(uploadDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload directory: %w", err)
	}

	var candidate string
	switch {
	case strings.HasPrefix(p, PublicUploadPrefix):
		candidate = filepath.Join(root, filepath.FromSlash(path.Clean("/"+strings.TrimPrefix(p, PublicUploadPrefix))))
	case filepath.IsAbs(p):
		candidate = filepath.Clean(p)
	default:
		candidate = filepath.Join(root, filepath.FromSlash(p))
	}

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the upload directory", domain.ErrInputNotFound, p)
	}

	return candidate, nil
}

// PublicUploadURL is the inverse of ResolveUploadPath for files inside uploadDir
func PublicUploadURL(uploadDir, localPath string) (string, error) {
	root, err := filepath.Abs(uploadDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the upload directory", localPath)
	}
	return PublicUploadPrefix + filepath.ToSlash(rel), nil
}
