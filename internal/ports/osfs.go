package ports

import (
	"os"
	"path/filepath"
)

// OSFilesystem is the production FilesystemPort backed by the os package.
type OSFilesystem struct{}

func (OSFilesystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile writes via write-temp-then-rename so a crash never leaves a
// half-written file at path, per the persisted-state crash-safety
// requirement.
func (OSFilesystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (OSFilesystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFilesystem) Remove(path string) error {
	return os.Remove(path)
}

func (OSFilesystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (OSFilesystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OSFilesystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (OSFilesystem) Symlink(target, linkPath string) error {
	return os.Symlink(target, linkPath)
}

func (OSFilesystem) Readlink(linkPath string) (string, error) {
	return os.Readlink(linkPath)
}

func (OSFilesystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}
