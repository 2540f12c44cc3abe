//go:build unix

package reindex

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func tryLock(file *os.File) (bool, error) {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return false, errors.WithStack(err)
}

func unlock(file *os.File) error {
	return errors.WithStack(unix.Flock(int(file.Fd()), unix.LOCK_UN))
}
