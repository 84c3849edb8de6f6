// Package catalog indexes the day's tradable universe for resolution.
//
// A Catalog is built once from a full feed and never modified afterwards;
// refreshes build a new Catalog and swap it into a Holder.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/types"
)

type indexKey struct {
	underlying string
	class      types.InstrumentClass
}

type listingKey struct {
	exchange string
	symbol   string
}

// Catalog is an immutable, indexed snapshot of instrument records.
type Catalog struct {
	records   []types.InstrumentRecord
	byKey     map[indexKey][]int
	bySymbol  map[string]int
	source    string
	synthetic bool
	loadedAt  time.Time
}

// Query filters records. Zero-valued fields are ignored.
type Query struct {
	Underlying string
	Class      types.InstrumentClass
	Exchange   string
	Expiry     time.Time
	Strike     decimal.Decimal
	HasStrike  bool
	Right      types.OptionRight
}

// Load validates records and builds a catalog from the valid ones. Invalid
// records are excluded and counted in the report.
func Load(records []types.InstrumentRecord, opts ...Option) (*Catalog, LoadReport) {
	c := &Catalog{
		records:  make([]types.InstrumentRecord, 0, len(records)),
		byKey:    make(map[indexKey][]int),
		bySymbol: make(map[string]int, len(records)),
		loadedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	report := LoadReport{Source: c.source, Synthetic: c.synthetic, Total: len(records)}
	listed := make(map[listingKey]struct{}, len(records))
	for _, r := range records {
		r = canonical(r)
		if err := r.Validate(); err != nil {
			report.exclude(r.TradableSymbol, err)
			continue
		}
		lk := listingKey{exchange: r.Exchange, symbol: r.TradableSymbol}
		if _, dup := listed[lk]; dup {
			report.exclude(r.TradableSymbol, errDuplicateSymbol)
			continue
		}
		listed[lk] = struct{}{}
		idx := len(c.records)
		c.records = append(c.records, r)
		if _, ok := c.bySymbol[r.TradableSymbol]; !ok {
			c.bySymbol[r.TradableSymbol] = idx
		}
		k := indexKey{underlying: r.Underlying, class: r.Class}
		c.byKey[k] = append(c.byKey[k], idx)
	}
	report.Loaded = len(c.records)
	return c, report
}

// Option configures catalog metadata at load time.
type Option func(*Catalog)

// WithSource labels the catalog with the feed it came from.
func WithSource(name string) Option {
	return func(c *Catalog) { c.source = name }
}

// AsSynthetic marks a catalog as generated rather than broker-sourced.
func AsSynthetic() Option {
	return func(c *Catalog) { c.synthetic = true }
}

func canonical(r types.InstrumentRecord) types.InstrumentRecord {
	r.Underlying = strings.ToUpper(strings.TrimSpace(r.Underlying))
	r.Exchange = strings.ToUpper(strings.TrimSpace(r.Exchange))
	r.TradableSymbol = strings.TrimSpace(r.TradableSymbol)
	if !r.Expiry.IsZero() {
		y, m, d := r.Expiry.Date()
		r.Expiry = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return r
}

// Len returns the number of records in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Source names the feed the catalog was built from.
func (c *Catalog) Source() string { return c.source }

// Synthetic reports whether the catalog was generated instead of fetched.
func (c *Catalog) Synthetic() bool { return c.synthetic }

// LoadedAt is when the catalog was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// Contains reports whether symbol is present verbatim.
func (c *Catalog) Contains(symbol string) bool {
	if c == nil {
		return false
	}
	_, ok := c.bySymbol[symbol]
	return ok
}

// Lookup returns the first record listed under a tradable symbol. Cash
// symbols can be listed on both NSE and BSE.
func (c *Catalog) Lookup(symbol string) (types.InstrumentRecord, bool) {
	if c == nil {
		return types.InstrumentRecord{}, false
	}
	idx, ok := c.bySymbol[symbol]
	if !ok {
		return types.InstrumentRecord{}, false
	}
	return c.records[idx], true
}

// Find returns the records for (underlying, class) that match the remaining
// query fields, in catalog order.
func (c *Catalog) Find(q Query) []types.InstrumentRecord {
	return c.filter(q, nil)
}

// FindMatching is Find restricted to records whose tradable symbol matches re.
func (c *Catalog) FindMatching(q Query, re *regexp.Regexp) []types.InstrumentRecord {
	return c.filter(q, re)
}

func (c *Catalog) filter(q Query, re *regexp.Regexp) []types.InstrumentRecord {
	if c == nil {
		return nil
	}
	idxs := c.byKey[indexKey{underlying: strings.ToUpper(q.Underlying), class: q.Class}]
	out := make([]types.InstrumentRecord, 0, len(idxs))
	for _, i := range idxs {
		r := c.records[i]
		if q.Exchange != "" && r.Exchange != q.Exchange {
			continue
		}
		if !q.Expiry.IsZero() && !r.Expiry.Equal(q.Expiry) {
			continue
		}
		if q.HasStrike && !r.Strike.Equal(q.Strike) {
			continue
		}
		if q.Right != "" && r.Right != q.Right {
			continue
		}
		if re != nil && !re.MatchString(r.TradableSymbol) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Expiries returns the distinct expiries among the matching records, ascending.
func (c *Catalog) Expiries(q Query) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, r := range c.Find(q) {
		if r.Expiry.IsZero() {
			continue
		}
		if _, ok := seen[r.Expiry]; ok {
			continue
		}
		seen[r.Expiry] = struct{}{}
		out = append(out, r.Expiry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Strikes returns the distinct strikes among the matching records, ascending.
func (c *Catalog) Strikes(q Query) []decimal.Decimal {
	var out []decimal.Decimal
	for _, r := range c.Find(q) {
		if r.Class != types.ClassOption {
			continue
		}
		out = append(out, r.Strike)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return dedupSorted(out)
}

// Underlyings lists the distinct underlyings of a class, sorted.
func (c *Catalog) Underlyings(class types.InstrumentClass) []string {
	if c == nil {
		return nil
	}
	var out []string
	for k := range c.byKey {
		if k.class == class {
			out = append(out, k.underlying)
		}
	}
	sort.Strings(out)
	return out
}

func dedupSorted(in []decimal.Decimal) []decimal.Decimal {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, d := range in[1:] {
		if !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return out
}
