package riskobs

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
	"trading-gate/internal/risk/ledger"
	"trading-gate/internal/tradelog"
	"trading-gate/internal/types"
)

func readAudit(t *testing.T) []tradelog.DecisionEntry {
	t.Helper()
	f, err := os.Open(tradelog.DecisionsPath(time.Now()))
	if err != nil {
		t.Fatalf("Expected audit file, got %v", err)
	}
	defer f.Close()
	var out []tradelog.DecisionEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e tradelog.DecisionEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Invalid audit line: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestWrap_AuditsDecisions(t *testing.T) {
	tradelog.SetDir(t.TempDir())
	defer tradelog.SetDir("")

	m, err := risk.NewManager(ledger.NewMemory(decimal.NewFromInt(100000)), risk.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	a := Wrap(m)
	ctx := context.Background()

	p := types.Position{
		Strategy:      "orb",
		Symbol:        "NIFTY24NOVFUT",
		Quantity:      50,
		EntryPrice:    decimal.NewFromInt(110),
		StopLossPrice: decimal.NewFromInt(100),
	}
	d, err := a.Admit(ctx, p)
	if err != nil || !d.Admitted {
		t.Fatalf("Expected admission, got %+v, %v", d, err)
	}

	p.Quantity = 5000
	d, err = a.Admit(ctx, p)
	if err != nil || d.Admitted {
		t.Fatalf("Expected rejection, got %+v, %v", d, err)
	}

	if err := a.RegisterExit(ctx, d.PositionID, decimal.Zero); err == nil {
		t.Error("Expected error for exit of a rejected position")
	}

	snap, err := a.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.RegisterExit(ctx, snap.Positions[0].ID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("RegisterExit failed: %v", err)
	}

	entries := readAudit(t)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 audit entries, got %d", len(entries))
	}
	if entries[0].Event != tradelog.EventAdmit || !entries[0].Admitted || entries[0].PositionID == "" {
		t.Errorf("Unexpected admit entry: %+v", entries[0])
	}
	if entries[1].Admitted || entries[1].Reason != string(types.RejectPerTradeCap) {
		t.Errorf("Expected PER_TRADE_CAP rejection, got %+v", entries[1])
	}
	if entries[2].Event != tradelog.EventExit || entries[2].Strategy != "orb" || entries[2].RealizedPnL != 250 {
		t.Errorf("Unexpected exit entry: %+v", entries[2])
	}
}

func TestWrap_BreakerAudited(t *testing.T) {
	tradelog.SetDir(t.TempDir())
	defer tradelog.SetDir("")

	m, err := risk.NewManager(ledger.NewMemory(decimal.Zero), risk.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	a := Wrap(m)
	ctx := context.Background()

	if err := a.ResetDay(ctx, time.Now(), decimal.NewFromInt(1000)); err != nil {
		t.Fatal(err)
	}
	p := types.Position{ID: "x", Symbol: "SBIN", Quantity: 1, EntryPrice: decimal.NewFromInt(10), StopLossPrice: decimal.NewFromInt(9)}
	if err := a.RegisterEntry(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := a.RegisterExit(ctx, "x", decimal.NewFromInt(-100)); err != nil {
		t.Fatal(err)
	}
	active, err := a.CheckDailyLoss(ctx)
	if err != nil || !active {
		t.Fatalf("Expected breaker active, got %v, %v", active, err)
	}

	entries := readAudit(t)
	last := entries[len(entries)-1]
	if last.Event != tradelog.EventBreaker || last.Reason != risk.BreakerDailyLoss {
		t.Errorf("Expected breaker audit entry, got %+v", last)
	}
}
