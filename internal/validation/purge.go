package validation

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"trading-gate/internal/expiry"
)

// PurgeState removes entries of the per-strategy state dir last modified
// before today (IST). Today's entries survive a re-run of validation.
func PurgeState(dir string, today time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return removed, err
		}
		if !expiry.Today(info.ModTime()).Before(today) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}
