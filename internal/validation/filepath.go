package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxAttachmentSize caps files posted to the feed.
const DefaultMaxAttachmentSize int64 = 25 << 20

// FilePathValidator guards local paths: attachments read from disk and the
// locations of foro's own state (database, search index, config).
type FilePathValidator struct {
	// AllowedBaseDirs restricts paths to these directories; empty allows any.
	AllowedBaseDirs []string
	MaxPathLength   int
	// MaxFileSize applies to ValidateAttachment; zero means unlimited.
	MaxFileSize int64
}

// NewAttachmentValidator allows files under the home directory, the working
// directory and the temp directory.
func NewAttachmentValidator() *FilePathValidator {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	dirs = append(dirs, os.TempDir())
	return &FilePathValidator{
		AllowedBaseDirs: dirs,
		MaxPathLength:   4096,
		MaxFileSize:     DefaultMaxAttachmentSize,
	}
}

// NewStateValidator checks the locations of foro's own state (database,
// search index, logs). Any directory is allowed.
func NewStateValidator() *FilePathValidator {
	return &FilePathValidator{MaxPathLength: 4096}
}

// ValidateAndSanitize expands a leading ~/, makes the path absolute and checks
// it against the allowed directories.
func (v *FilePathValidator) ValidateAndSanitize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if v.MaxPathLength > 0 && len(path) > v.MaxPathLength {
		return "", fmt.Errorf("path too long (max %d characters)", v.MaxPathLength)
	}
	for _, r := range path {
		if r == 0 {
			return "", fmt.Errorf("path contains null bytes")
		}
		if r < 32 && r != '\t' {
			return "", fmt.Errorf("path contains control characters")
		}
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return "", fmt.Errorf("directory traversal not allowed")
		}
	}

	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	abs = filepath.Clean(abs)

	if err := v.checkBaseDirs(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// ValidateAttachment checks path and confirms it names a non-empty regular
// file within the size limit. It returns the cleaned path and the file size.
func (v *FilePathValidator) ValidateAttachment(path string) (string, int64, error) {
	clean, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", 0, err
	}

	info, err := os.Stat(clean)
	if err != nil {
		return "", 0, fmt.Errorf("checking attachment: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("not a regular file: %s", clean)
	}
	if info.Size() == 0 {
		return "", 0, fmt.Errorf("file is empty: %s", clean)
	}
	if v.MaxFileSize > 0 && info.Size() > v.MaxFileSize {
		return "", 0, fmt.Errorf("file too large (%d bytes, max %d)", info.Size(), v.MaxFileSize)
	}
	return clean, info.Size(), nil
}

// ValidateDirectory checks path and optionally creates it.
func (v *FilePathValidator) ValidateDirectory(path string, create bool) (string, error) {
	clean, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(clean)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("path exists but is not a directory: %s", clean)
		}
	case os.IsNotExist(err):
		if create {
			if mkErr := os.MkdirAll(clean, 0o755); mkErr != nil {
				return "", fmt.Errorf("creating directory: %w", mkErr)
			}
		}
	default:
		return "", fmt.Errorf("checking directory: %w", err)
	}
	return clean, nil
}

func (v *FilePathValidator) checkBaseDirs(abs string) error {
	if len(v.AllowedBaseDirs) == 0 {
		return nil
	}
	for _, base := range v.AllowedBaseDirs {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBase, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path not within allowed directories: %v", v.AllowedBaseDirs)
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
	}
	if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("unsupported tilde form: %s", path)
	}
	return path, nil
}
