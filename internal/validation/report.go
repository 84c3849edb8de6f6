package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-gate/internal/catalog"
	"trading-gate/internal/resolver"
	"trading-gate/internal/types"
)

// Failure is one strategy that could not be resolved.
type Failure struct {
	Strategy string               `json:"strategy"`
	Spec     types.InstrumentSpec `json:"spec"`
	Kind     resolver.Kind        `json:"kind"`
	Detail   string               `json:"detail"`
}

// Resolution is one strategy resolved for the day.
type Resolution struct {
	Strategy string               `json:"strategy"`
	Symbol   types.ResolvedSymbol `json:"symbol"`
}

// Report is the day's halt signal. Halt is true when the catalog could not be
// built or any strategy failed; no strategy may trade on a halted day.
type Report struct {
	TradingDay      time.Time          `json:"trading_day"`
	Mode            string             `json:"mode"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Purged          []string           `json:"purged,omitempty"`
	Catalog         catalog.LoadReport `json:"catalog"`
	CatalogLoadedAt time.Time          `json:"catalog_loaded_at"`
	Resolved        []Resolution       `json:"resolved"`
	Failures        []Failure          `json:"failures"`
	Halt            bool               `json:"halt"`
	HaltReason      string             `json:"halt_reason,omitempty"`
}

func (r *Report) halt(reason string) {
	r.Halt = true
	if r.HaltReason == "" {
		r.HaltReason = reason
	}
}

// Summary renders the report for terminal output.
func (r *Report) Summary() string {
	var b strings.Builder
	status := "PASS"
	if r.Halt {
		status = "HALT"
	}
	fmt.Fprintf(&b, "%s trading_day=%s mode=%s resolved=%d failed=%d\n",
		status, r.TradingDay.Format("2006-01-02"), r.Mode, len(r.Resolved), len(r.Failures))
	fmt.Fprintf(&b, "catalog: %s\n", r.Catalog)
	if r.HaltReason != "" {
		fmt.Fprintf(&b, "reason: %s\n", r.HaltReason)
	}
	for _, res := range r.Resolved {
		fmt.Fprintf(&b, "  ok    %-20s %s (lot %d)\n", res.Strategy, res.Symbol.TradableSymbol, res.Symbol.LotSize)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  FAIL  %-20s %s %s: %s\n", f.Strategy, f.Kind, f.Spec, f.Detail)
	}
	return b.String()
}

// Write stores the report as dir/validation-YYYY-MM-DD.json.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "validation-"+r.TradingDay.Format("2006-01-02")+".json")
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
