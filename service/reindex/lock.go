package reindex

import (
	"os"
	"sync"

	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
)

// FileLock is an exclusive advisory lock on a file, held by one process at a
// time. Lock and Unlock may be called from different goroutines.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return nil
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.WithStack(err)
	}

	held, err := tryLock(file)
	if err != nil {
		_ = file.Close()
		return errors.WithStack(err)
	}
	if !held {
		_ = file.Close()
		return errors.WithStack(utils.NewCustomError(utils.StateLocked,
			"%s is locked by another process", l.path))
	}

	l.file = file
	return nil
}

func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	errs := &utils.Errs{}
	errs.Add(unlock(l.file))
	errs.Add(l.file.Close())
	l.file = nil
	return errors.WithStack(errs.Ret())
}
