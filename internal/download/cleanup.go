package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimeoutError reports that no completed download appeared in time.
type TimeoutError struct {
	Dir     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("download timeout: no completed file in %s after %s", e.Dir, e.Timeout)
}

// RemovePartials deletes in-progress download files from dir and returns how many were removed.
func RemovePartials(dir string) (int, error) {
	names, err := listFiles(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, name := range names {
		if !IsPartial(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Purge removes dir and everything in it. A missing dir is not an error.
func Purge(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge download directory %s: %w", dir, err)
	}
	return nil
}
