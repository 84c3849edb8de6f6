package eod

// SummaryRow is one line of the end-of-day admission report, per strategy
// plus a TOTAL line.
type SummaryRow struct {
	Strategy     string `csv:"strategy"`
	Requests     int    `csv:"requests"`
	Admitted     int    `csv:"admitted"`
	Rejected     int    `csv:"rejected"`
	TopReject    string `csv:"top_reject_reason"`
	Entries      int    `csv:"entries"`
	Exits        int    `csv:"exits"`
	ProposedRisk string `csv:"proposed_risk"`
	RealizedPnL  string `csv:"realized_pnl"`
	MaxHeatPct   string `csv:"max_heat_pct"`
}

// aggRow accumulates one strategy's decisions before formatting.
type aggRow struct {
	strategy     string
	requests     int
	admitted     int
	rejected     int
	reasons      map[string]int
	entries      int
	exits        int
	proposedRisk float64
	realizedPnL  float64
	maxHeat      float64
}
