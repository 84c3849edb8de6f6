package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trading-gate/internal/catalog"
	"trading-gate/internal/logger"
	"trading-gate/internal/resolver"
	"trading-gate/internal/types"
)

var (
	rsUnderlying string
	rsClass      string
	rsExchange   string
	rsExpiry     string
	rsStrike     string
	rsDepth      int
	rsRight      string
	rsSpot       float64
	rsDate       string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one instrument spec against today's catalog",
	Long: `Resolve loads the configured catalog feed and maps a single instrument spec
onto a tradable symbol. It does not halt the day or write a report.

Example:
  gate resolve --underlying NIFTY --class CE --strike OTM --depth 2
  gate resolve --underlying SILVER --class FUTURE --exchange MCX`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&rsUnderlying, "underlying", "u", "", "underlying name, e.g. NIFTY (required)")
	resolveCmd.Flags().StringVar(&rsClass, "class", "EQUITY", "EQUITY, FUTURE, OPTION, or CE/PE as option shorthand")
	resolveCmd.Flags().StringVarP(&rsExchange, "exchange", "e", "", "restrict to one exchange")
	resolveCmd.Flags().StringVar(&rsExpiry, "expiry", "", "option expiry preference: WEEKLY or MONTHLY")
	resolveCmd.Flags().StringVar(&rsStrike, "strike", "", "option strike criteria: ATM, ITM or OTM")
	resolveCmd.Flags().IntVar(&rsDepth, "depth", 0, "strikes away from ATM for ITM/OTM")
	resolveCmd.Flags().StringVar(&rsRight, "right", "", "option right: CE or PE")
	resolveCmd.Flags().Float64Var(&rsSpot, "spot", 0, "spot override; quoted from the spot source when 0")
	resolveCmd.Flags().StringVar(&rsDate, "date", "", "trading date YYYY-MM-DD (default today IST)")

	resolveCmd.MarkFlagRequired("underlying")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	class, right, err := types.ParseInstrumentClass(rsClass)
	if err != nil {
		return err
	}
	if rsRight != "" {
		right = types.OptionRight(strings.ToUpper(rsRight))
	}
	spec := types.InstrumentSpec{
		Underlying: rsUnderlying,
		Class:      class,
		Exchange:   rsExchange,
		Expiry:     types.ExpiryPreference(rsExpiry),
		Strike:     types.StrikeCriteria(rsStrike),
		Depth:      rsDepth,
		Right:      right,
	}.Normalized()

	today := time.Now()
	if rsDate != "" {
		if today, err = time.Parse("2006-01-02", rsDate); err != nil {
			return fmt.Errorf("bad --date: %w", err)
		}
	}

	src, err := initializeSources(ctx, cfg)
	if err != nil {
		return err
	}
	rows, err := src.catalog.FetchInstruments(ctx)
	if err != nil {
		return err
	}
	cat, lr := catalog.Build(rows, catalog.WithSource(src.catalog.Name()))
	logger.Info(ctx, "Catalog loaded", "report", lr.String())

	var spot *decimal.Decimal
	if spec.Class == types.ClassOption {
		px := decimal.NewFromFloat(rsSpot)
		if rsSpot <= 0 {
			px, err = src.spots.Spot(ctx, spec.Underlying)
			if err != nil {
				return resolver.SpotUnavailable(spec, err)
			}
		}
		spot = &px
	}

	r, err := initializeResolver(cfg).Resolve(spec, cat, spot, today)
	logger.Resolution(ctx, "cli", spec.Underlying, r.TradableSymbol, err)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", resolver.KindOf(err), err)
		return err
	}

	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
