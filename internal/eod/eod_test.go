package eod

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"trading-gate/internal/expiry"
	"trading-gate/internal/tradelog"
)

func TestSummarizeDay(t *testing.T) {
	tradelog.SetDir(t.TempDir())
	defer tradelog.SetDir("")

	entries := []tradelog.DecisionEntry{
		{Event: tradelog.EventAdmit, Strategy: "orb", Admitted: true, ProposedRisk: 500, HeatAfter: 0.005},
		{Event: tradelog.EventAdmit, Strategy: "orb", Reason: "HEAT_LIMIT", ProposedRisk: 2000, HeatAfter: 0.025},
		{Event: tradelog.EventAdmit, Strategy: "orb", Reason: "HEAT_LIMIT", ProposedRisk: 1900},
		{Event: tradelog.EventExit, Strategy: "orb", RealizedPnL: 750},
		{Event: tradelog.EventAdmit, Strategy: "straddle", Reason: "CIRCUIT_BREAKER", ProposedRisk: 100},
		{Event: tradelog.EventBreaker},
	}
	for _, e := range entries {
		if err := tradelog.AppendDecision(e); err != nil {
			t.Fatalf("AppendDecision failed: %v", err)
		}
	}

	s := &eodSummarizer{dir: t.TempDir(), now: time.Now}
	path, err := s.SummarizeToday()
	if err != nil {
		t.Fatalf("SummarizeToday failed: %v", err)
	}
	if path == "" {
		t.Fatal("Expected a report path")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected report file, got %v", err)
	}
	defer f.Close()
	var rows []*SummaryRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}

	// (none), orb, straddle, TOTAL
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}
	orb := rows[1]
	if orb.Strategy != "orb" || orb.Requests != 3 || orb.Admitted != 1 || orb.Rejected != 2 {
		t.Errorf("Unexpected orb row: %+v", orb)
	}
	if orb.TopReject != "HEAT_LIMIT" {
		t.Errorf("Expected top reject HEAT_LIMIT, got %s", orb.TopReject)
	}
	if orb.RealizedPnL != "750.00" || orb.MaxHeatPct != "2.50" {
		t.Errorf("Unexpected orb pnl/heat: %s %s", orb.RealizedPnL, orb.MaxHeatPct)
	}
	total := rows[3]
	if total.Strategy != "TOTAL" || total.Requests != 4 || total.Rejected != 3 {
		t.Errorf("Unexpected total row: %+v", total)
	}
}

func TestSummarizeDay_NoLog(t *testing.T) {
	tradelog.SetDir(t.TempDir())
	defer tradelog.SetDir("")

	s := &eodSummarizer{dir: t.TempDir(), now: time.Now}
	path, err := s.SummarizeDay(time.Now())
	if err != nil || path != "" {
		t.Errorf("Expected empty result, got %q, %v", path, err)
	}
}

func TestShouldRunNow(t *testing.T) {
	dir := t.TempDir()
	before := time.Date(2024, 11, 8, 15, 0, 0, 0, expiry.IST())
	after := time.Date(2024, 11, 8, 15, 45, 0, 0, expiry.IST())

	s := &eodSummarizer{dir: dir, now: func() time.Time { return before }}
	if run, _ := s.ShouldRunNow(); run {
		t.Error("Expected no run before market close")
	}

	s.now = func() time.Time { return after }
	run, path := s.ShouldRunNow()
	if !run {
		t.Error("Expected run after market close")
	}
	if path != filepath.Join(dir, "2024-11-08.csv") {
		t.Errorf("Expected dated path, got %s", path)
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if run, _ := s.ShouldRunNow(); run {
		t.Error("Expected no rerun once the report exists")
	}
}
