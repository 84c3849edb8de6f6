package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryPreference selects between the nearest weekly and the monthly contract.
type ExpiryPreference string

const (
	ExpiryWeekly  ExpiryPreference = "WEEKLY"
	ExpiryMonthly ExpiryPreference = "MONTHLY"
)

// StrikeCriteria selects the strike relative to spot.
type StrikeCriteria string

const (
	StrikeATM StrikeCriteria = "ATM"
	StrikeITM StrikeCriteria = "ITM"
	StrikeOTM StrikeCriteria = "OTM"
)

// InstrumentSpec is the strategy-authored description of what to trade.
type InstrumentSpec struct {
	Underlying string           `yaml:"underlying" json:"underlying"`
	Class      InstrumentClass  `yaml:"instrument_class" json:"instrument_class"`
	Exchange   string           `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	Expiry     ExpiryPreference `yaml:"expiry_preference,omitempty" json:"expiry_preference,omitempty"`
	Strike     StrikeCriteria   `yaml:"strike_criteria,omitempty" json:"strike_criteria,omitempty"`
	Depth      int              `yaml:"depth,omitempty" json:"depth,omitempty"`
	Right      OptionRight      `yaml:"option_right,omitempty" json:"option_right,omitempty"`
}

// Normalized returns a copy with upper-cased fields and defaults applied:
// WEEKLY expiry, ATM strike and depth 1 for options.
func (s InstrumentSpec) Normalized() InstrumentSpec {
	s.Underlying = strings.ToUpper(strings.TrimSpace(s.Underlying))
	s.Class = InstrumentClass(strings.ToUpper(string(s.Class)))
	s.Exchange = strings.ToUpper(strings.TrimSpace(s.Exchange))
	s.Expiry = ExpiryPreference(strings.ToUpper(string(s.Expiry)))
	s.Strike = StrikeCriteria(strings.ToUpper(string(s.Strike)))
	s.Right = OptionRight(strings.ToUpper(string(s.Right)))
	if s.Class == ClassOption {
		if s.Expiry == "" {
			s.Expiry = ExpiryWeekly
		}
		if s.Strike == "" {
			s.Strike = StrikeATM
		}
		if s.Depth == 0 {
			s.Depth = 1
		}
	}
	return s
}

// Validate checks the structural shape of a normalized spec.
func (s InstrumentSpec) Validate() error {
	if s.Underlying == "" {
		return fmt.Errorf("underlying is required")
	}
	if !s.Class.Valid() {
		return fmt.Errorf("instrument_class %q must be EQUITY, FUTURE or OPTION", s.Class)
	}
	if s.Class != ClassOption {
		if s.Strike != "" || s.Right != "" {
			return fmt.Errorf("strike_criteria and option_right apply to OPTION only")
		}
		return nil
	}
	if !s.Right.Valid() {
		return fmt.Errorf("option_right %q must be CE or PE", s.Right)
	}
	switch s.Expiry {
	case ExpiryWeekly, ExpiryMonthly:
	default:
		return fmt.Errorf("expiry_preference %q must be WEEKLY or MONTHLY", s.Expiry)
	}
	switch s.Strike {
	case StrikeATM, StrikeITM, StrikeOTM:
	default:
		return fmt.Errorf("strike_criteria %q must be ATM, ITM or OTM", s.Strike)
	}
	if s.Depth < 1 {
		return fmt.Errorf("depth must be at least 1, got %d", s.Depth)
	}
	return nil
}

// String renders the spec for operator-facing reports.
func (s InstrumentSpec) String() string {
	var b strings.Builder
	b.WriteString(s.Underlying)
	b.WriteString(" ")
	b.WriteString(string(s.Class))
	if s.Exchange != "" {
		b.WriteString("@" + s.Exchange)
	}
	if s.Class == ClassOption {
		fmt.Fprintf(&b, " %s %s", s.Expiry, s.Strike)
		if s.Strike != StrikeATM {
			fmt.Fprintf(&b, "+%d", s.Depth)
		}
		b.WriteString(" " + string(s.Right))
	}
	return b.String()
}

// ResolvedSymbol is the resolver's output for one spec.
type ResolvedSymbol struct {
	TradableSymbol  string          `json:"tradable_symbol"`
	LotSize         int             `json:"lot_size"`
	Exchange        string          `json:"exchange"`
	Expiry          time.Time       `json:"expiry,omitempty"`
	Strike          decimal.Decimal `json:"strike"`
	InstrumentToken uint32          `json:"instrument_token,omitempty"`
	Spec            InstrumentSpec  `json:"spec"`
}
