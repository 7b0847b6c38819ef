// Package imagecodec moves images between local files and the encodings
// remote try-on providers accept.
package imagecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basel-ax/vybex/internal/domain"
)

const defaultMimeType = "image/jpeg"

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ReadFile returns the raw bytes of the image at path
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to read image file %s: %w", path, err)
	}
	return data, nil
}

// Encode returns the base64 encoding of the image at path
func Encode(path string) (string, error) {
	data, err := ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// RequireFiles fails with domain.ErrInputNotFound naming the first path
// that is not an existing regular file.
func RequireFiles(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s", domain.ErrInputNotFound, p)
		}
	}
	return nil
}

// InferMimeType maps the file extension to an image MIME type, defaulting to JPEG
func InferMimeType(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return defaultMimeType
}

// ExtensionForMimeType returns the file extension (without dot) for an image MIME type
func ExtensionForMimeType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "jpg"
	}
	switch mt {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}

// NewFilename builds "<prefix>-<unix millis>[-<index>]-<salt>.<ext>".
// A negative index is omitted.
func NewFilename(prefix string, index int, ext string) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ext = strings.TrimPrefix(ext, ".")
	if index < 0 {
		return fmt.Sprintf("%s-%d-%s.%s", prefix, time.Now().UnixMilli(), salt, ext)
	}
	return fmt.Sprintf("%s-%d-%d-%s.%s", prefix, time.Now().UnixMilli(), index, salt, ext)
}

// Persist writes data to dir/filename, creating dir when needed.
// Content goes to a temporary sibling first and is renamed into place,
// so the target is either complete or absent.
func Persist(data []byte, dir, filename string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filename+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	// CreateTemp uses 0600
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to set permissions on %s: %w", filename, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close %s: %w", filename, err)
	}

	target := filepath.Join(dir, filename)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move %s into place: %w", filename, err)
	}

	return target, nil
}
