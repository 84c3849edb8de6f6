package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"trading-gate/internal/catalog"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
)

// Kite allows roughly 10 quote requests per second per API key.
const defaultQuotesPerSecond = 5

var (
	ErrMissingCredentials = errors.New("missing API key/access token")
	ErrNoQuote            = errors.New("no quote returned")
)

type Params struct {
	APIKey          string
	AccessToken     string
	Exchanges       []string
	QuotesPerSecond float64
	QuoteKeys       map[string]string
}

// Zerodha reads the instrument master and spot quotes from Kite Connect.
type Zerodha struct {
	p       Params
	kc      kiteClient
	limiter *rate.Limiter
	keys    *quoteKeyMapper
}

var (
	_ interfaces.CatalogSource   = (*Zerodha)(nil)
	_ interfaces.BatchSpotSource = (*Zerodha)(nil)
)

func NewZerodha(p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, ErrMissingCredentials
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newWithClient(p, kc), nil
}

func newWithClient(p Params, kc kiteClient) *Zerodha {
	qps := p.QuotesPerSecond
	if qps <= 0 {
		qps = defaultQuotesPerSecond
	}
	return &Zerodha{
		p:       p,
		kc:      kc,
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		keys:    newQuoteKeyMapper(p.QuoteKeys),
	}
}

func (z *Zerodha) Name() string { return "kite" }

// FetchInstruments downloads the master for the configured exchanges, or the
// full dump when none are configured.
func (z *Zerodha) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	if len(z.p.Exchanges) == 0 {
		ins, err := call(ctx, z.kc.GetInstruments)
		if err != nil {
			return nil, fmt.Errorf("kite instruments: %w", err)
		}
		return toRawRecords(ins), nil
	}

	var rows []catalog.RawRecord
	for _, ex := range z.p.Exchanges {
		ex := strings.ToUpper(ex)
		ins, err := call(ctx, func() (kiteconnect.Instruments, error) {
			return z.kc.GetInstrumentsByExchange(ex)
		})
		if err != nil {
			return nil, fmt.Errorf("kite instruments %s: %w", ex, err)
		}
		logger.Debug(ctx, "Fetched exchange instruments", "exchange", ex, "count", len(ins))
		rows = append(rows, toRawRecords(ins)...)
	}
	return rows, nil
}

// Spot returns the last traded price of an underlying.
func (z *Zerodha) Spot(ctx context.Context, underlying string) (decimal.Decimal, error) {
	if err := z.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	key := z.keys.quoteKey(underlying)
	ltp, err := call(ctx, func() (kiteconnect.QuoteLTP, error) {
		return z.kc.GetLTP(key)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("kite ltp %s: %w", key, err)
	}

	q, ok := ltp[key]
	if !ok || q.LastPrice <= 0 {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoQuote, key)
	}

	logger.Debug(ctx, "Fetched spot", "underlying", underlying, "quote_key", key, "instrument_token", q.InstrumentToken, "price", q.LastPrice)
	return decimal.NewFromFloat(q.LastPrice), nil
}

// Spots quotes several underlyings in one LTP request. Underlyings Kite
// returns no price for are absent from the result.
func (z *Zerodha) Spots(ctx context.Context, underlyings []string) (map[string]decimal.Decimal, error) {
	if len(underlyings) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(underlyings))
	for _, u := range underlyings {
		keys = append(keys, z.keys.quoteKey(u))
	}
	ltp, err := call(ctx, func() (kiteconnect.QuoteLTP, error) {
		return z.kc.GetLTP(keys...)
	})
	if err != nil {
		return nil, fmt.Errorf("kite ltp: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(ltp))
	for key, q := range ltp {
		if q.LastPrice <= 0 {
			continue
		}
		u, ok := z.keys.underlying(key)
		if !ok {
			continue
		}
		out[u] = decimal.NewFromFloat(q.LastPrice)
	}
	logger.Debug(ctx, "Fetched spots", "requested", len(keys), "quoted", len(out))
	return out, nil
}

// call runs a blocking Kite request, returning early if ctx ends first.
// The Kite client takes no context, so an abandoned request finishes in the
// background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

func toRawRecords(ins kiteconnect.Instruments) []catalog.RawRecord {
	rows := make([]catalog.RawRecord, 0, len(ins))
	for _, in := range ins {
		row := catalog.RawRecord{
			InstrumentToken: uint32(in.InstrumentToken),
			ExchangeToken:   uint32(in.ExchangeToken),
			Tradingsymbol:   in.Tradingsymbol,
			Name:            in.Name,
			LastPrice:       in.LastPrice,
			Strike:          in.StrikePrice,
			TickSize:        in.TickSize,
			LotSize:         int(in.LotSize),
			InstrumentType:  in.InstrumentType,
			Segment:         in.Segment,
			Exchange:        in.Exchange,
		}
		if !in.Expiry.Time.IsZero() {
			row.Expiry = in.Expiry.Time.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return rows
}
