package validation

import (
	"errors"
	"fmt"
)

var ErrCatalogUnavailable = errors.New("catalog unavailable")

// CatalogUnavailableError reports a catalog refresh that failed after all
// attempts, with no permitted fallback.
type CatalogUnavailableError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("%s: source %s after %d attempt(s): %v", ErrCatalogUnavailable, e.Source, e.Attempts, e.Err)
}

func (e *CatalogUnavailableError) Is(target error) bool { return target == ErrCatalogUnavailable }

func (e *CatalogUnavailableError) Unwrap() error { return e.Err }

var ErrPurgeFailed = errors.New("stale state purge failed")

// PurgeError reports a state or cache directory that could not be purged.
type PurgeError struct {
	Dir string
	Err error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPurgeFailed, e.Dir, e.Err)
}

func (e *PurgeError) Is(target error) bool { return target == ErrPurgeFailed }

func (e *PurgeError) Unwrap() error { return e.Err }

var errEmptyFeed = errors.New("feed returned no usable instruments")
