package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// CheckDir verifies that path exists and is a directory. Its errors wrap
// ErrDirectoryNotFound or ErrNotADirectory.
func CheckDir(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDirectoryNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return nil
}
