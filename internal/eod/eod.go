// Package eod writes the end-of-day admission summary: per strategy, how many
// signals were admitted or rejected and why, entries and exits booked, and
// the realized P&L, read back from the day's risk audit log.
package eod

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"trading-gate/internal/expiry"
	"trading-gate/internal/tradelog"
)

const unattributed = "(none)"

type eodSummarizer struct {
	dir string
	now func() time.Time
}

func (s *eodSummarizer) csvPath(t time.Time) string {
	return filepath.Join(s.dir, t.In(expiry.IST()).Format("2006-01-02")+".csv")
}

// SummarizeDay returns "" with a nil error when the day has no decisions.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := tradelog.DecisionsPath(t)
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e tradelog.DecisionEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		key := e.Strategy
		if key == "" {
			key = unattributed
		}
		row := aggs[key]
		if row == nil {
			row = &aggRow{strategy: key, reasons: map[string]int{}}
			aggs[key] = row
		}
		row.add(e)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := &aggRow{strategy: "TOTAL", reasons: map[string]int{}}
	rows := make([]*SummaryRow, 0, len(keys)+1)
	for _, k := range keys {
		r := aggs[k]
		total.merge(r)
		rows = append(rows, r.summary())
	}
	rows = append(rows, total.summary())

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := gocsv.MarshalFile(&rows, out); err != nil {
		return "", fmt.Errorf("write eod csv: %w", err)
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) { return s.SummarizeDay(s.now()) }

// ShouldRunNow is true after 15:40 IST once per day, until the report exists.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(expiry.IST())
	outPath := s.csvPath(now)
	if now.After(marketCloseTime(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

func marketCloseTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, t.Location())
}

func (r *aggRow) add(e tradelog.DecisionEntry) {
	switch e.Event {
	case tradelog.EventAdmit:
		r.requests++
		r.proposedRisk += e.ProposedRisk
		if e.Admitted {
			r.admitted++
			r.entries++
		} else {
			r.rejected++
			r.reasons[e.Reason]++
		}
	case tradelog.EventEntry:
		r.entries++
	case tradelog.EventExit:
		r.exits++
		r.realizedPnL += e.RealizedPnL
	}
	if e.HeatAfter > r.maxHeat {
		r.maxHeat = e.HeatAfter
	}
}

func (r *aggRow) merge(o *aggRow) {
	r.requests += o.requests
	r.admitted += o.admitted
	r.rejected += o.rejected
	r.entries += o.entries
	r.exits += o.exits
	r.proposedRisk += o.proposedRisk
	r.realizedPnL += o.realizedPnL
	if o.maxHeat > r.maxHeat {
		r.maxHeat = o.maxHeat
	}
	for k, n := range o.reasons {
		r.reasons[k] += n
	}
}

func (r *aggRow) summary() *SummaryRow {
	return &SummaryRow{
		Strategy:     r.strategy,
		Requests:     r.requests,
		Admitted:     r.admitted,
		Rejected:     r.rejected,
		TopReject:    topReason(r.reasons),
		Entries:      r.entries,
		Exits:        r.exits,
		ProposedRisk: fmt.Sprintf("%.2f", r.proposedRisk),
		RealizedPnL:  fmt.Sprintf("%.2f", r.realizedPnL),
		MaxHeatPct:   fmt.Sprintf("%.2f", r.maxHeat*100),
	}
}

// topReason picks the most frequent rejection, ties by name.
func topReason(reasons map[string]int) string {
	best, bestN := "", 0
	for k, n := range reasons {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
