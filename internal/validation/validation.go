// Package validation runs the day-start gate: purge yesterday's state,
// refresh the instrument catalog, resolve every strategy's instrument spec,
// and halt the whole day if anything failed.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"trading-gate/internal/broker/zerodha"
	"trading-gate/internal/catalog"
	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
	"trading-gate/internal/metrics"
	"trading-gate/internal/resolver"
	"trading-gate/internal/store"
	"trading-gate/internal/tradelog"
	"trading-gate/internal/types"
)

type Options struct {
	Mode                   string
	StateDir               string
	CacheDir               string
	ReportDir              string
	RefreshTimeout         time.Duration
	RetryAttempts          int
	AllowSyntheticFallback bool
	Workers                int
	Strategies             []store.Strategy
}

func OptionsFromConfig(cfg *store.Config) Options {
	return Options{
		Mode:                   cfg.Mode,
		StateDir:               cfg.StateDir,
		CacheDir:               cfg.Catalog.CacheDir,
		ReportDir:              cfg.Validation.ReportDir,
		RefreshTimeout:         time.Duration(cfg.Catalog.RefreshTimeoutSeconds) * time.Second,
		RetryAttempts:          cfg.Catalog.RetryAttempts,
		AllowSyntheticFallback: cfg.Catalog.AllowSyntheticFallback,
		Workers:                cfg.Validation.Workers,
		Strategies:             cfg.Strategies,
	}
}

// Orchestrator owns one validation run per call to Run. The catalog it builds
// is published through the holder only after it loaded successfully.
type Orchestrator struct {
	opts     Options
	source   interfaces.CatalogSource
	fallback interfaces.CatalogSource
	spots    interfaces.SpotSource
	resolver interfaces.Resolver
	holder   *catalog.Holder
	now      func() time.Time
	retry    time.Duration
}

// New wires an orchestrator. fallback may be nil; it is only consulted when
// AllowSyntheticFallback is set, and never in LIVE mode.
func New(opts Options, source, fallback interfaces.CatalogSource, spots interfaces.SpotSource, res interfaces.Resolver, holder *catalog.Holder) (*Orchestrator, error) {
	if source == nil {
		return nil, errors.New("catalog source is required")
	}
	if res == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Mode == store.ModeLive && opts.AllowSyntheticFallback {
		return nil, errors.New("synthetic fallback is not allowed in LIVE mode")
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = time.Minute
	}
	if holder == nil {
		holder = catalog.NewHolder(nil)
	}
	return &Orchestrator{
		opts:     opts,
		source:   source,
		fallback: fallback,
		spots:    spots,
		resolver: res,
		holder:   holder,
		now:      time.Now,
		retry:    500 * time.Millisecond,
	}, nil
}

// Run executes the pipeline. A non-nil error is returned when the stale-state
// purge fails or the catalog is unavailable; strategy failures are reported
// through Report.Halt. The report is always returned and written.
func (o *Orchestrator) Run(ctx context.Context) (report *Report, err error) {
	op := logger.StartOperation(ctx, "validation.Run", "mode", o.opts.Mode, "strategies", len(o.opts.Strategies))
	ctx = op.GetContext()
	defer func() {
		if err != nil {
			op.EndWithError(err)
			return
		}
		op.End("resolved", len(report.Resolved), "failed", len(report.Failures), "halt", report.Halt)
	}()

	start := o.now()
	today := expiry.Today(start)
	report = &Report{
		TradingDay: today,
		Mode:       o.opts.Mode,
		StartedAt:  start.UTC(),
		Resolved:   []Resolution{},
		Failures:   []Failure{},
	}
	defer o.finish(ctx, report)

	if err := o.purge(ctx, report, today); err != nil {
		report.halt(err.Error())
		return report, err
	}

	cat, err := o.refresh(ctx, report)
	if err != nil {
		report.halt(err.Error())
		return report, err
	}
	o.holder.Swap(cat)
	report.CatalogLoadedAt = cat.LoadedAt().UTC()

	o.resolveAll(ctx, report, cat, today)
	if len(report.Failures) > 0 {
		report.halt(fmt.Sprintf("%d of %d strategies failed resolution", len(report.Failures), len(o.opts.Strategies)))
	}
	if cat.Synthetic() && o.opts.Mode == store.ModeLive {
		report.halt("synthetic catalog in LIVE mode")
	}
	return report, nil
}

// purge clears previous-day strategy state and instrument caches. Any error
// stops the day: a stale resolved symbol must not survive a contract roll.
func (o *Orchestrator) purge(ctx context.Context, report *Report, today time.Time) error {
	if o.opts.StateDir != "" {
		removed, err := PurgeState(o.opts.StateDir, today)
		report.Purged = append(report.Purged, removed...)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to purge strategy state", err, "dir", o.opts.StateDir)
			return &PurgeError{Dir: o.opts.StateDir, Err: err}
		}
	}
	if o.opts.CacheDir != "" {
		removed, err := zerodha.PurgeStaleCaches(o.opts.CacheDir, today)
		report.Purged = append(report.Purged, removed...)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to purge instrument cache", err, "dir", o.opts.CacheDir)
			return &PurgeError{Dir: o.opts.CacheDir, Err: err}
		}
	}
	if len(report.Purged) > 0 {
		logger.Info(ctx, "Purged previous-day state", "count", len(report.Purged))
	}
	return nil
}

// refresh loads the day's catalog, falling back to the synthetic feed only
// when permitted.
func (o *Orchestrator) refresh(ctx context.Context, report *Report) (*catalog.Catalog, error) {
	cat, lr, attempts, err := o.fetchWithRetry(ctx, o.source)
	if err == nil {
		report.Catalog = lr
		recordCatalog(lr)
		return cat, nil
	}

	unavailable := &CatalogUnavailableError{Source: o.source.Name(), Attempts: attempts, Err: err}
	if !o.opts.AllowSyntheticFallback || o.fallback == nil || o.opts.Mode == store.ModeLive {
		logger.ErrorWithErr(ctx, "Catalog unavailable, halting", unavailable, "mode", o.opts.Mode)
		return nil, unavailable
	}

	logger.Warn(ctx, "Catalog unavailable, using SYNTHETIC catalog",
		"source", o.source.Name(),
		"error", err,
		"mode", o.opts.Mode,
	)
	rows, ferr := o.fallback.FetchInstruments(ctx)
	if ferr != nil {
		return nil, &CatalogUnavailableError{Source: o.fallback.Name(), Attempts: 1, Err: errors.Join(err, ferr)}
	}
	cat, lr = catalog.Build(rows, catalog.WithSource(o.fallback.Name()), catalog.AsSynthetic())
	report.Catalog = lr
	recordCatalog(lr)
	if cat.Len() == 0 {
		return nil, &CatalogUnavailableError{Source: o.fallback.Name(), Attempts: 1, Err: errEmptyFeed}
	}
	return cat, nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, src interfaces.CatalogSource) (*catalog.Catalog, catalog.LoadReport, int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.RefreshTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retry

	var lastErr error
	for attempt := 1; ; attempt++ {
		op := logger.StartOperation(ctx, "catalog.fetch", "source", src.Name(), "attempt", attempt)
		rows, err := src.FetchInstruments(op.GetContext())
		if err == nil {
			cat, lr := catalog.Build(rows, catalog.WithSource(src.Name()))
			if cat.Len() > 0 {
				op.End("loaded", lr.Loaded, "excluded", lr.Excluded)
				logger.Info(ctx, "Catalog loaded", "report", lr.String(), "attempt", attempt)
				return cat, lr, attempt, nil
			}
			err = errEmptyFeed
		}
		op.EndWithError(err)
		lastErr = err
		logger.Warn(ctx, "Catalog refresh attempt failed",
			"source", src.Name(),
			"attempt", attempt,
			"max_attempts", o.opts.RetryAttempts,
			"error", err,
		)
		if attempt >= o.opts.RetryAttempts {
			return nil, catalog.LoadReport{}, attempt, lastErr
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, catalog.LoadReport{}, attempt, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, catalog.LoadReport{}, attempt, errors.Join(lastErr, ctx.Err())
		case <-time.After(wait):
		}
	}
}

type outcome struct {
	resolved types.ResolvedSymbol
	err      error
}

// resolveAll attempts every strategy; there is no early exit so the report
// carries the complete failure list.
func (o *Orchestrator) resolveAll(ctx context.Context, report *Report, cat *catalog.Catalog, today time.Time) {
	strategies := o.opts.Strategies
	spots := o.prefetchSpots(ctx, strategies)

	results := make([]outcome, len(strategies))
	p := pool.New().WithMaxGoroutines(o.opts.Workers)
	for i, s := range strategies {
		p.Go(func() {
			spec := s.Instrument.Normalized()
			var spot *decimal.Decimal
			q, quoted := spots[spec.Underlying]
			if spec.Class == types.ClassOption && quoted && q.err == nil {
				spot = &q.price
			}
			r, err := o.resolver.Resolve(spec, cat, spot, today)
			if resolver.KindOf(err) == resolver.KindSpotUnavailable && q.err != nil {
				err = resolver.SpotUnavailable(spec, q.err)
			}
			results[i] = outcome{resolved: r, err: err}
		})
	}
	p.Wait()

	for i, s := range strategies {
		res := results[i]
		spec := s.Instrument.Normalized()
		if res.err != nil {
			kind := resolver.KindOf(res.err)
			if kind == "" {
				kind = resolver.KindNoContractFound
			}
			report.Failures = append(report.Failures, Failure{
				Strategy: s.Name,
				Spec:     spec,
				Kind:     kind,
				Detail:   res.err.Error(),
			})
			metrics.Resolutions.WithLabelValues(string(spec.Class), string(kind)).Inc()
			logger.Resolution(ctx, s.Name, spec.Underlying, "", res.err, "kind", string(kind))
			audit(ctx, tradelog.ResolutionEntry{
				Strategy:   s.Name,
				Underlying: spec.Underlying,
				Class:      string(spec.Class),
				Exchange:   spec.Exchange,
				ErrorKind:  string(kind),
				Error:      res.err.Error(),
				Synthetic:  cat.Synthetic(),
			})
			continue
		}

		report.Resolved = append(report.Resolved, Resolution{Strategy: s.Name, Symbol: res.resolved})
		metrics.Resolutions.WithLabelValues(string(spec.Class), "ok").Inc()
		logger.Resolution(ctx, s.Name, spec.Underlying, res.resolved.TradableSymbol, nil,
			"lot_size", res.resolved.LotSize,
			"exchange", res.resolved.Exchange,
		)
		entry := tradelog.ResolutionEntry{
			Strategy:   s.Name,
			Underlying: spec.Underlying,
			Class:      string(spec.Class),
			Exchange:   res.resolved.Exchange,
			Symbol:     res.resolved.TradableSymbol,
			LotSize:    res.resolved.LotSize,
			Synthetic:  cat.Synthetic(),
		}
		if !res.resolved.Expiry.IsZero() {
			entry.Expiry = res.resolved.Expiry.Format("2006-01-02")
		}
		if spec.Class == types.ClassOption {
			entry.Strike = res.resolved.Strike.String()
		}
		audit(ctx, entry)
	}
}

type quote struct {
	price decimal.Decimal
	err   error
}

// prefetchSpots quotes each option underlying once. Underlyings missing from
// the result had no quote at all.
func (o *Orchestrator) prefetchSpots(ctx context.Context, strategies []store.Strategy) map[string]quote {
	seen := map[string]bool{}
	var underlyings []string
	for _, s := range strategies {
		spec := s.Instrument.Normalized()
		if spec.Class == types.ClassOption && spec.Underlying != "" && !seen[spec.Underlying] {
			seen[spec.Underlying] = true
			underlyings = append(underlyings, spec.Underlying)
		}
	}
	out := make(map[string]quote, len(underlyings))
	if len(underlyings) == 0 || o.spots == nil {
		return out
	}
	sort.Strings(underlyings)

	if batch, ok := o.spots.(interfaces.BatchSpotSource); ok {
		prices, err := batch.Spots(ctx, underlyings)
		if err != nil {
			logger.ErrorWithErr(ctx, "Batch spot quote failed", err, "underlyings", underlyings)
			for _, u := range underlyings {
				out[u] = quote{err: err}
			}
			return out
		}
		for u, px := range prices {
			out[u] = quote{price: px}
		}
		return out
	}

	for _, u := range underlyings {
		px, err := o.spots.Spot(ctx, u)
		if err != nil {
			logger.Warn(ctx, "Spot quote failed", "underlying", u, "error", err)
		}
		out[u] = quote{price: px, err: err}
	}
	return out
}

func (o *Orchestrator) finish(ctx context.Context, report *Report) {
	report.FinishedAt = o.now().UTC()
	metrics.ValidationHalted.Set(metrics.Bool(report.Halt))

	if o.opts.ReportDir != "" {
		path, err := report.Write(o.opts.ReportDir)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to write validation report", err, "dir", o.opts.ReportDir)
		} else {
			logger.Info(ctx, "Validation report written", "path", path)
		}
	}

	if logger.IsDebugEnabled() {
		logger.Debug(ctx, "Validation report", "summary", report.Summary())
	}
	if report.Halt {
		logger.Error(ctx, "Trading day HALTED",
			"reason", report.HaltReason,
			"failures", len(report.Failures),
			"resolved", len(report.Resolved),
		)
		return
	}
	logger.Info(ctx, "Trading day validated",
		"resolved", len(report.Resolved),
		"catalog", report.Catalog.String(),
	)
}

func recordCatalog(lr catalog.LoadReport) {
	metrics.CatalogRecords.WithLabelValues(lr.Source, "loaded").Set(float64(lr.Loaded))
	metrics.CatalogRecords.WithLabelValues(lr.Source, "excluded").Set(float64(lr.Excluded))
	for reason, n := range lr.Reasons {
		metrics.CatalogExcluded.WithLabelValues(reason).Add(float64(n))
	}
}

func audit(ctx context.Context, e tradelog.ResolutionEntry) {
	if err := tradelog.AppendResolution(e); err != nil {
		logger.Warn(ctx, "Failed to append resolution audit entry", "strategy", e.Strategy, "error", err)
	}
}
