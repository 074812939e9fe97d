package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultDirPermissions is used for every directory we create
const DefaultDirPermissions = 0755

// EnsureDir creates a directory and all parent directories if they don't exist
func EnsureDir(dirPath string) error {
	return EnsureDirFs(afero.NewOsFs(), dirPath)
}

// EnsureDirFs is EnsureDir against an arbitrary filesystem
func EnsureDirFs(fs afero.Fs, dirPath string) error {
	if dirPath == "" {
		return fmt.Errorf("directory path cannot be empty")
	}

	if info, err := fs.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("path %s exists but is not a directory", dirPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", dirPath, err)
	}

	if err := fs.MkdirAll(dirPath, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureDirForFile creates the directory needed for a file path
func EnsureDirForFile(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// EnsureDirForFileFs is EnsureDirForFile against an arbitrary filesystem
func EnsureDirForFileFs(fs afero.Fs, filePath string) error {
	return EnsureDirFs(fs, filepath.Dir(filePath))
}
