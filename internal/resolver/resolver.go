// Package resolver turns strategy-authored instrument specs into concrete
// tradable symbols against a catalog snapshot.
//
// Resolution is pure: the catalog, spot price and trading date are inputs and
// the same inputs always produce the same symbol.
package resolver

import (
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/catalog"
	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/types"
)

// TieBreak picks between two strikes equidistant from spot.
type TieBreak string

const (
	TieLower  TieBreak = "LOWER"
	TieHigher TieBreak = "HIGHER"
)

type Options struct {
	TieBreak TieBreak
}

type Resolver struct {
	opts Options
}

var _ interfaces.Resolver = (*Resolver)(nil)

func New(opts Options) *Resolver {
	if opts.TieBreak != TieHigher {
		opts.TieBreak = TieLower
	}
	return &Resolver{opts: opts}
}

// Resolve maps spec onto exactly one record of cat. spot is required for
// OPTION specs and ignored otherwise.
func (r *Resolver) Resolve(spec types.InstrumentSpec, cat *catalog.Catalog, spot *decimal.Decimal, today time.Time) (types.ResolvedSymbol, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return types.ResolvedSymbol{}, newError(KindInvalidSpec, spec, err, "")
	}
	if cat.Len() == 0 {
		return types.ResolvedSymbol{}, newError(KindNoContractFound, spec, nil, "catalog is empty")
	}
	today = expiry.DateOf(today)

	var (
		rec types.InstrumentRecord
		err error
	)
	switch spec.Class {
	case types.ClassEquity:
		rec, err = r.resolveEquity(spec, cat)
	case types.ClassFuture:
		rec, err = r.resolveFuture(spec, cat, today)
	case types.ClassOption:
		rec, err = r.resolveOption(spec, cat, spot, today)
	}
	if err != nil {
		return types.ResolvedSymbol{}, err
	}

	return types.ResolvedSymbol{
		TradableSymbol:  rec.TradableSymbol,
		LotSize:         rec.LotSize,
		Exchange:        rec.Exchange,
		Expiry:          rec.Expiry,
		Strike:          rec.Strike,
		InstrumentToken: rec.InstrumentToken,
		Spec:            spec,
	}, nil
}

func (r *Resolver) resolveEquity(spec types.InstrumentSpec, cat *catalog.Catalog) (types.InstrumentRecord, error) {
	recs := cat.Find(catalog.Query{Underlying: spec.Underlying, Class: types.ClassEquity, Exchange: spec.Exchange})
	if len(recs) == 0 {
		return types.InstrumentRecord{}, newError(KindNoContractFound, spec, nil, "no equity listing")
	}
	return pick(recs), nil
}

func (r *Resolver) resolveFuture(spec types.InstrumentSpec, cat *catalog.Catalog, today time.Time) (types.InstrumentRecord, error) {
	q := catalog.Query{Underlying: spec.Underlying, Class: types.ClassFuture, Exchange: spec.Exchange}
	recs := cat.Find(q)
	if len(recs) == 0 {
		return types.InstrumentRecord{}, newError(KindNoContractFound, spec, nil, "no futures listed")
	}

	if isMCX(spec, recs) {
		mini, regular := splitMini(spec.Underlying, recs)
		if rec, ok := nearest(mini, today); ok {
			return rec, nil
		}
		if rec, ok := nearest(regular, today); ok {
			return rec, nil
		}
		return types.InstrumentRecord{}, newError(KindExpiryNotFound, spec, expiry.ErrNoExpiry, "no MCX future expiring on or after %s", today.Format("2006-01-02"))
	}

	if rec, ok := nearest(recs, today); ok {
		return rec, nil
	}
	return types.InstrumentRecord{}, newError(KindExpiryNotFound, spec, expiry.ErrNoExpiry, "no future expiring on or after %s", today.Format("2006-01-02"))
}

func (r *Resolver) resolveOption(spec types.InstrumentSpec, cat *catalog.Catalog, spot *decimal.Decimal, today time.Time) (types.InstrumentRecord, error) {
	if spot == nil {
		return types.InstrumentRecord{}, SpotUnavailable(spec, nil)
	}
	if !spot.IsPositive() {
		return types.InstrumentRecord{}, newError(KindSpotUnavailable, spec, nil, "non-positive spot %s", spot.String())
	}

	q := catalog.Query{Underlying: spec.Underlying, Class: types.ClassOption, Exchange: spec.Exchange, Right: spec.Right}
	available := cat.Expiries(q)
	if len(available) == 0 {
		return types.InstrumentRecord{}, newError(KindNoContractFound, spec, nil, "no %s options listed", spec.Right)
	}

	exp, err := expiry.SelectExpiry(available, spec.Expiry, today)
	if err != nil {
		return types.InstrumentRecord{}, newError(KindExpiryNotFound, spec, err, "")
	}
	q.Expiry = exp

	strikes := cat.Strikes(q)
	if len(strikes) == 0 {
		return types.InstrumentRecord{}, newError(KindStrikeNotFound, spec, nil, "no strikes for %s", exp.Format("2006-01-02"))
	}

	atm := r.atmIndex(strikes, *spot)
	idx := atm
	switch {
	case spec.Strike == types.StrikeATM:
	case (spec.Strike == types.StrikeITM) == (spec.Right == types.RightCall):
		// ITM calls and OTM puts sit below spot
		idx = atm - spec.Depth
	default:
		idx = atm + spec.Depth
	}
	if idx < 0 || idx >= len(strikes) {
		return types.InstrumentRecord{}, newError(KindStrikeNotFound, spec, nil,
			"%s depth %d from ATM %s is outside the %d-strike ladder", spec.Strike, spec.Depth, strikes[atm].String(), len(strikes))
	}

	q.Strike = strikes[idx]
	q.HasStrike = true
	recs := cat.Find(q)
	if len(recs) == 0 {
		return types.InstrumentRecord{}, newError(KindNoContractFound, spec, nil, "strike %s vanished from catalog", q.Strike.String())
	}
	return pick(recs), nil
}

// atmIndex returns the index of the strike closest to spot. Strikes are
// ascending, so a tie is between i-1 and i.
func (r *Resolver) atmIndex(strikes []decimal.Decimal, spot decimal.Decimal) int {
	best := 0
	bestDist := strikes[0].Sub(spot).Abs()
	for i := 1; i < len(strikes); i++ {
		d := strikes[i].Sub(spot).Abs()
		switch d.Cmp(bestDist) {
		case -1:
			best, bestDist = i, d
		case 0:
			if r.opts.TieBreak == TieHigher {
				best = i
			}
		}
	}
	return best
}

// MiniPattern matches the MCX mini contract naming for an underlying, e.g.
// SILVERM24NOVFUT, or any symbol carrying MINI.
func MiniPattern(underlying string) *regexp.Regexp {
	return regexp.MustCompile(`MINI|^` + regexp.QuoteMeta(underlying) + `M\d`)
}

func isMCX(spec types.InstrumentSpec, recs []types.InstrumentRecord) bool {
	if spec.Exchange != "" {
		return spec.Exchange == types.ExchangeMCX
	}
	for _, r := range recs {
		if r.Exchange == types.ExchangeMCX {
			return true
		}
	}
	return false
}

func splitMini(underlying string, recs []types.InstrumentRecord) (mini, regular []types.InstrumentRecord) {
	re := MiniPattern(underlying)
	for _, r := range recs {
		if re.MatchString(r.TradableSymbol) {
			mini = append(mini, r)
		} else {
			regular = append(regular, r)
		}
	}
	return mini, regular
}

// nearest returns the record with the front-month expiry among recs.
func nearest(recs []types.InstrumentRecord, today time.Time) (types.InstrumentRecord, bool) {
	if len(recs) == 0 {
		return types.InstrumentRecord{}, false
	}
	dates := make([]time.Time, 0, len(recs))
	for _, r := range recs {
		dates = append(dates, r.Expiry)
	}
	exp, err := expiry.Nearest(dates, today)
	if err != nil {
		return types.InstrumentRecord{}, false
	}

	var same []types.InstrumentRecord
	for _, r := range recs {
		if r.Expiry.Equal(exp) {
			same = append(same, r)
		}
	}
	return pick(same), true
}

var exchangeRank = map[string]int{
	types.ExchangeNSE: 0,
	types.ExchangeNFO: 0,
	types.ExchangeBSE: 1,
	types.ExchangeBFO: 1,
}

// pick chooses deterministically among equivalent listings: NSE segments
// before BSE ones, then by symbol.
func pick(recs []types.InstrumentRecord) types.InstrumentRecord {
	sorted := make([]types.InstrumentRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i].Exchange), rank(sorted[j].Exchange)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].TradableSymbol < sorted[j].TradableSymbol
	})
	return sorted[0]
}

func rank(exchange string) int {
	if r, ok := exchangeRank[exchange]; ok {
		return r
	}
	return 2
}
