package zerodha

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"trading-gate/internal/catalog"
	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
)

const (
	cachePrefix = "instruments-"
	cacheExt    = ".csv"
)

// CachePath is where the instrument master for day is cached.
func CachePath(dir string, day time.Time) string {
	return filepath.Join(dir, cachePrefix+day.Format("2006-01-02")+cacheExt)
}

// ReadCSV loads instrument rows from a Kite-format CSV dump.
func ReadCSV(path string) ([]catalog.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []catalog.RawRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

// WriteCache stores rows as the cache file for day. The file is written
// under a temporary name and renamed so readers never see a partial dump.
func WriteCache(dir string, day time.Time, rows []catalog.RawRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := CachePath(dir, day)
	tmp := p + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return p, os.Rename(tmp, p)
}

// PurgeStaleCaches removes cache files for any day other than today and
// returns the removed paths. A missing directory is not an error.
func PurgeStaleCaches(dir string, today time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keep := filepath.Base(CachePath(dir, today))
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep {
			continue
		}
		if !strings.HasPrefix(name, cachePrefix) {
			continue
		}
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// CachedSource serves today's instrument master from disk when present and
// otherwise fetches it from the wrapped source and caches it.
type CachedSource struct {
	src interfaces.CatalogSource
	dir string
	now func() time.Time
}

var _ interfaces.CatalogSource = (*CachedSource)(nil)

func NewCachedSource(src interfaces.CatalogSource, dir string) *CachedSource {
	return &CachedSource{src: src, dir: dir, now: time.Now}
}

func (c *CachedSource) Name() string { return c.src.Name() }

func (c *CachedSource) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	today := expiry.Today(c.now())
	p := CachePath(c.dir, today)

	if _, err := os.Stat(p); err == nil {
		rows, err := ReadCSV(p)
		if err == nil && len(rows) > 0 {
			logger.Debug(ctx, "Instrument master served from cache", "path", p, "count", len(rows))
			return rows, nil
		}
		logger.Warn(ctx, "Ignoring unreadable instrument cache", "path", p, "error", err)
	}

	rows, err := c.src.FetchInstruments(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := WriteCache(c.dir, today, rows); err != nil {
		logger.Warn(ctx, "Failed to cache instrument master", "path", p, "error", err)
	}
	return rows, nil
}
