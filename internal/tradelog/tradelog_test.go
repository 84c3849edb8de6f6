package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendDecision(t *testing.T) {
	SetDir(t.TempDir())
	defer SetDir("")

	if err := AppendDecision(DecisionEntry{Event: EventAdmit, Symbol: "NIFTY24NOVFUT", Admitted: true, ProposedRisk: 500}); err != nil {
		t.Fatalf("AppendDecision failed: %v", err)
	}
	if err := AppendDecision(DecisionEntry{Event: EventAdmit, Symbol: "BANKNIFTY24NOVFUT", Reason: "HEAT_LIMIT"}); err != nil {
		t.Fatalf("AppendDecision failed: %v", err)
	}

	f, err := os.Open(DecisionsPath(time.Now()))
	if err != nil {
		t.Fatalf("Expected decisions file, got %v", err)
	}
	defer f.Close()

	var got []DecisionEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e DecisionEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Invalid JSON line: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].Time == "" {
		t.Errorf("Expected Time to be stamped")
	}
	if !got[0].Admitted || got[1].Reason != "HEAT_LIMIT" {
		t.Errorf("Unexpected entries: %+v", got)
	}
}

func TestAppendResolution(t *testing.T) {
	root := t.TempDir()
	SetDir(root)
	defer SetDir("")

	if err := AppendResolution(ResolutionEntry{Strategy: "orb", Underlying: "NIFTY", Symbol: "NIFTY24NOVFUT"}); err != nil {
		t.Fatalf("AppendResolution failed: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(root, "resolutions", "*.txt"))
	if len(matches) != 1 {
		t.Errorf("Expected 1 resolution file, got %d", len(matches))
	}
}

func TestCompressOlder(t *testing.T) {
	root := t.TempDir()
	SetDir(root)
	defer SetDir("")

	old := filepath.Join(root, "risk", "2020-01-01.txt")
	fresh := filepath.Join(root, "risk", "2099-01-01.txt")
	if err := os.MkdirAll(filepath.Dir(old), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(7); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be removed", old)
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("Expected gzip archive, got %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("Expected fresh log to stay, got %v", err)
	}
}
