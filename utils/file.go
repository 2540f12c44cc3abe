package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func FileIsExisted(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// WriteFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path. Readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
