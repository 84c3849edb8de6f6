// Package tradelog appends audit records as JSON lines, one file per IST
// trading day: risk decisions under <dir>/risk and symbol resolutions under
// <dir>/resolutions.
package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trading-gate/internal/expiry"
)

var (
	mu  sync.Mutex
	dir string
)

// Risk events recorded in DecisionEntry.Event.
const (
	EventCanAdmit = "CAN_ADMIT"
	EventAdmit    = "ADMIT"
	EventEntry    = "ENTRY"
	EventExit     = "EXIT"
	EventBreaker  = "BREAKER"
	EventReset    = "RESET"
)

type DecisionEntry struct {
	Time, Event, Strategy, Symbol, PositionID, Side string
	Qty                                             int     `json:",omitempty"`
	EntryPrice                                      float64 `json:",omitempty"`
	StopLoss                                        float64 `json:",omitempty"`
	Admitted                                        bool
	Reason, Detail                                  string `json:",omitempty"`
	ProposedRisk                                    float64
	HeatAfter                                       float64
	RealizedPnL                                     float64        `json:",omitempty"`
	Extra                                           map[string]any `json:"extra,omitempty"`
}

type ResolutionEntry struct {
	Time, Strategy, Underlying, Class, Exchange string
	Symbol, Expiry, Strike                      string `json:",omitempty"`
	LotSize                                     int    `json:",omitempty"`
	ErrorKind, Error                            string `json:",omitempty"`
	Synthetic                                   bool
	Extra                                       map[string]any `json:"extra,omitempty"`
}

// SetDir overrides the log root. An empty dir restores the default of
// $GATE_LOG_DIR or "logs".
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

func logDir() string {
	if dir != "" {
		return dir
	}
	if v := os.Getenv("GATE_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// DecisionsPath is the risk log for the IST date of t.
func DecisionsPath(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return decisionsFilepath(t)
}

func decisionsFilepath(t time.Time) string {
	d := t.In(expiry.IST()).Format("2006-01-02")
	return filepath.Join(logDir(), "risk", d+".txt")
}

func resolutionsFilepath(t time.Time) string {
	d := t.In(expiry.IST()).Format("2006-01-02")
	return filepath.Join(logDir(), "resolutions", d+".txt")
}

func AppendDecision(e DecisionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(expiry.IST())
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(decisionsFilepath(now), e)
}

func AppendResolution(e ResolutionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(expiry.IST())
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(resolutionsFilepath(now), e)
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt logs older than retentionDays and removes the
// originals.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	mu.Lock()
	root := logDir()
	mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
