package zerodha

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/catalog"
	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/types"
)

// SyntheticUnderlying describes one underlying of the generated universe.
// Cash exchanges (NSE, BSE) produce an equity listing; derivative exchanges
// produce monthly futures and, unless NoOptions is set, an option chain.
type SyntheticUnderlying struct {
	Name       string
	Exchange   string
	Spot       decimal.Decimal
	StrikeStep decimal.Decimal
	LotSize    int
	Weekly     bool
	Mini       bool
	NoOptions  bool
}

type SyntheticParams struct {
	Underlyings     []SyntheticUnderlying
	WeeklyExpiries  int
	MonthlyExpiries int
	StrikesEachSide int
}

// Synthetic generates a plausible instrument master for offline runs. Symbols
// follow Kite's naming so resolution logic is exercised as in production.
type Synthetic struct {
	p   SyntheticParams
	now func() time.Time
}

var _ interfaces.CatalogSource = (*Synthetic)(nil)

func NewSynthetic(p SyntheticParams) *Synthetic {
	if p.WeeklyExpiries <= 0 {
		p.WeeklyExpiries = 4
	}
	if p.MonthlyExpiries <= 0 {
		p.MonthlyExpiries = 3
	}
	if p.StrikesEachSide <= 0 {
		p.StrikesEachSide = 10
	}
	return &Synthetic{p: p, now: time.Now}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := expiry.Today(s.now())
	monthly := monthlyExpiries(today, s.p.MonthlyExpiries)
	weekly := weeklyExpiries(today, s.p.WeeklyExpiries)

	var rows []catalog.RawRecord
	for _, u := range s.p.Underlyings {
		name := strings.ToUpper(u.Name)
		ex := strings.ToUpper(u.Exchange)
		lot := u.LotSize
		if lot <= 0 {
			lot = 1
		}

		switch ex {
		case types.ExchangeNSE, types.ExchangeBSE:
			rows = append(rows, catalog.RawRecord{
				Tradingsymbol: name, Name: name, LotSize: 1, TickSize: 0.05,
				InstrumentType: "EQ", Segment: ex, Exchange: ex, LastPrice: u.Spot.InexactFloat64(),
			})
			continue
		}

		for _, m := range monthly {
			rows = append(rows, futureRow(name, name, ex, m, lot))
			if u.Mini {
				rows = append(rows, futureRow(name+"M", name, ex, m, max(1, lot/5)))
			}
		}
		if u.NoOptions || ex == types.ExchangeMCX {
			continue
		}

		expiries := monthly
		if u.Weekly {
			expiries = mergeDates(monthly, weekly)
		}
		for _, e := range expiries {
			isMonthly := e.Equal(expiry.LastWeekday(e.Year(), e.Month(), time.Thursday))
			for _, k := range strikeLadder(u.Spot, u.StrikeStep, s.p.StrikesEachSide) {
				for _, right := range []types.OptionRight{types.RightCall, types.RightPut} {
					rows = append(rows, catalog.RawRecord{
						Tradingsymbol:  optionSymbol(name, e, isMonthly, k, right),
						Name:           name,
						Expiry:         e.Format("2006-01-02"),
						Strike:         k.InexactFloat64(),
						TickSize:       0.05,
						LotSize:        lot,
						InstrumentType: string(right),
						Segment:        ex + "-OPT",
						Exchange:       ex,
					})
				}
			}
		}
	}
	return rows, nil
}

func futureRow(prefix, name, ex string, e time.Time, lot int) catalog.RawRecord {
	return catalog.RawRecord{
		Tradingsymbol:  prefix + monthCode(e) + "FUT",
		Name:           name,
		Expiry:         e.Format("2006-01-02"),
		TickSize:       0.05,
		LotSize:        lot,
		InstrumentType: "FUT",
		Segment:        ex + "-FUT",
		Exchange:       ex,
	}
}

// monthCode renders "24NOV" for November 2024.
func monthCode(t time.Time) string {
	return t.Format("06") + strings.ToUpper(t.Format("Jan"))
}

// optionSymbol follows Kite's scheme: monthly contracts carry YYMON, weekly
// ones YY, a single-character month (1-9, O, N, D) and the day.
func optionSymbol(name string, e time.Time, isMonthly bool, strike decimal.Decimal, right types.OptionRight) string {
	if isMonthly {
		return fmt.Sprintf("%s%s%s%s", name, monthCode(e), strike.String(), right)
	}
	m := "123456789OND"[e.Month()-1]
	return fmt.Sprintf("%s%s%c%02d%s%s", name, e.Format("06"), m, e.Day(), strike.String(), right)
}

// monthlyExpiries returns the last Thursday of n consecutive months, starting
// with the current month unless its expiry has passed.
func monthlyExpiries(today time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	y, m := today.Year(), today.Month()
	for len(out) < n {
		e := expiry.LastWeekday(y, m, time.Thursday)
		if !e.Before(today) {
			out = append(out, e)
		}
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return out
}

// weeklyExpiries returns the next n Thursdays on or after today.
func weeklyExpiries(today time.Time, n int) []time.Time {
	d := today
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, 1)
	}
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, d.AddDate(0, 0, 7*i))
	}
	return out
}

func mergeDates(a, b []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(a)+len(b))
	var out []time.Time
	for _, t := range append(append([]time.Time{}, a...), b...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// strikeLadder centres n strikes either side of spot rounded down to step.
func strikeLadder(spot, step decimal.Decimal, n int) []decimal.Decimal {
	if !step.IsPositive() {
		step = decimal.NewFromInt(50)
	}
	base := spot.Div(step).Floor().Mul(step)
	out := make([]decimal.Decimal, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		k := base.Add(step.Mul(decimal.NewFromInt(int64(i))))
		if k.IsPositive() {
			out = append(out, k)
		}
	}
	return out
}

// StaticSpot serves spot prices from configuration.
type StaticSpot struct {
	Prices map[string]decimal.Decimal
}

var _ interfaces.BatchSpotSource = StaticSpot{}

func (s StaticSpot) Spot(ctx context.Context, underlying string) (decimal.Decimal, error) {
	p, ok := s.Prices[upper(underlying)]
	if !ok || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoQuote, underlying)
	}
	return p, nil
}

func (s StaticSpot) Spots(ctx context.Context, underlyings []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(underlyings))
	for _, u := range underlyings {
		if p, err := s.Spot(ctx, u); err == nil {
			out[upper(u)] = p
		}
	}
	return out, nil
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
