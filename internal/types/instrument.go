package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentClass identifies the market structure of a contract.
type InstrumentClass string

const (
	ClassEquity InstrumentClass = "EQUITY"
	ClassFuture InstrumentClass = "FUTURE"
	ClassOption InstrumentClass = "OPTION"
)

// Valid reports whether the class is recognised.
func (c InstrumentClass) Valid() bool {
	switch c {
	case ClassEquity, ClassFuture, ClassOption:
		return true
	default:
		return false
	}
}

// ParseInstrumentClass accepts both the canonical names and the Kite
// instrument_type codes (EQ, FUT, CE, PE).
func ParseInstrumentClass(s string) (InstrumentClass, OptionRight, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EQUITY", "EQ":
		return ClassEquity, "", nil
	case "FUTURE", "FUT":
		return ClassFuture, "", nil
	case "OPTION":
		return ClassOption, "", nil
	case "CE":
		return ClassOption, RightCall, nil
	case "PE":
		return ClassOption, RightPut, nil
	}
	return "", "", fmt.Errorf("unknown instrument class %q", s)
}

// OptionRight is CE (call) or PE (put).
type OptionRight string

const (
	RightCall OptionRight = "CE"
	RightPut  OptionRight = "PE"
)

func (r OptionRight) Valid() bool {
	return r == RightCall || r == RightPut
}

// Exchanges the gate knows about. MCX gets special futures handling.
const (
	ExchangeNSE = "NSE"
	ExchangeBSE = "BSE"
	ExchangeNFO = "NFO"
	ExchangeBFO = "BFO"
	ExchangeMCX = "MCX"
	ExchangeCDS = "CDS"
)

// InstrumentRecord is one row of the broker's tradable universe. Records are
// immutable once loaded into a catalog.
type InstrumentRecord struct {
	Underlying      string          `json:"underlying"`
	Class           InstrumentClass `json:"instrument_class"`
	Exchange        string          `json:"exchange"`
	Expiry          time.Time       `json:"expiry,omitempty"`
	Strike          decimal.Decimal `json:"strike"`
	Right           OptionRight     `json:"option_right,omitempty"`
	LotSize         int             `json:"lot_size"`
	TradableSymbol  string          `json:"tradable_symbol"`
	InstrumentToken uint32          `json:"instrument_token,omitempty"`
	TickSize        decimal.Decimal `json:"tick_size"`
	Segment         string          `json:"segment,omitempty"`
}

// Load-time validation failures. The catalog counts excluded records by these.
var (
	ErrMissingSymbol     = errors.New("missing tradable symbol")
	ErrMissingUnderlying = errors.New("missing underlying")
	ErrBadClass          = errors.New("unknown instrument class")
	ErrBadLotSize        = errors.New("lot size must be positive")
	ErrMissingExpiry     = errors.New("derivative without expiry")
	ErrUnexpectedExpiry  = errors.New("equity with expiry")
	ErrBadStrike         = errors.New("option strike must be positive")
	ErrUnexpectedStrike  = errors.New("strike on non-option")
	ErrBadRight          = errors.New("option right must be CE or PE")
	ErrUnexpectedRight   = errors.New("option right on non-option")
	ErrUnparseableExpiry = errors.New("unparseable expiry date")
)

// Validate enforces the class-specific required fields.
func (r InstrumentRecord) Validate() error {
	if strings.TrimSpace(r.TradableSymbol) == "" {
		return ErrMissingSymbol
	}
	if strings.TrimSpace(r.Underlying) == "" {
		return ErrMissingUnderlying
	}
	if r.LotSize <= 0 {
		return ErrBadLotSize
	}

	switch r.Class {
	case ClassEquity:
		if !r.Expiry.IsZero() {
			return ErrUnexpectedExpiry
		}
		if !r.Strike.IsZero() {
			return ErrUnexpectedStrike
		}
		if r.Right != "" {
			return ErrUnexpectedRight
		}
	case ClassFuture:
		if r.Expiry.IsZero() {
			return ErrMissingExpiry
		}
		if !r.Strike.IsZero() {
			return ErrUnexpectedStrike
		}
		if r.Right != "" {
			return ErrUnexpectedRight
		}
	case ClassOption:
		if r.Expiry.IsZero() {
			return ErrMissingExpiry
		}
		if !r.Strike.IsPositive() {
			return ErrBadStrike
		}
		if !r.Right.Valid() {
			return ErrBadRight
		}
	default:
		return ErrBadClass
	}
	return nil
}
