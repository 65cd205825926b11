package profile

import (
	"errors"
	"os"
	"sync"

	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

type scopedFile struct {
	*os.File
	once sync.Once
	err  error
}

func (f *scopedFile) Path() string {
	return f.Name()
}

// Release closes and removes the file. Repeated calls return the first result.
func (f *scopedFile) Release() error {
	f.once.Do(func() {
		closeErr := f.File.Close()
		if errors.Is(closeErr, os.ErrClosed) {
			closeErr = nil
		}
		removeErr := os.Remove(f.Name())
		if errors.Is(removeErr, os.ErrNotExist) {
			removeErr = nil
		}
		f.err = errors.Join(closeErr, removeErr)
	})
	return f.err
}

// CreateScopedTemp creates a 0600 file named <namespace>-*<suffix> in the
// configured temp directory (os.TempDir when unset).
func (c *Capabilities) CreateScopedTemp(suffix, namespace string) (state.ScopedTemp, error) {
	f, err := os.CreateTemp(c.tempDir, namespace+"-*"+suffix)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &scopedFile{File: f}, nil
}
