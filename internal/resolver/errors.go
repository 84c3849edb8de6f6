package resolver

import (
	"errors"
	"fmt"

	"trading-gate/internal/types"
)

// Kind classifies a resolution failure for reports and metrics.
type Kind string

const (
	KindNoContractFound Kind = "NO_CONTRACT_FOUND"
	KindExpiryNotFound  Kind = "EXPIRY_NOT_FOUND"
	KindStrikeNotFound  Kind = "STRIKE_NOT_FOUND"
	KindInvalidSpec     Kind = "INVALID_SPEC"
	KindSpotUnavailable Kind = "SPOT_UNAVAILABLE"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrNoContractFound = errors.New("no contract found")
	ErrExpiryNotFound  = errors.New("expiry not found")
	ErrStrikeNotFound  = errors.New("strike not found")
	ErrInvalidSpec     = errors.New("invalid instrument spec")
	ErrSpotUnavailable = errors.New("spot unavailable")
)

var sentinels = map[Kind]error{
	KindNoContractFound: ErrNoContractFound,
	KindExpiryNotFound:  ErrExpiryNotFound,
	KindStrikeNotFound:  ErrStrikeNotFound,
	KindInvalidSpec:     ErrInvalidSpec,
	KindSpotUnavailable: ErrSpotUnavailable,
}

// Error is a typed resolution failure.
type Error struct {
	Kind   Kind
	Spec   types.InstrumentSpec
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", sentinels[e.Kind], e.Spec)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, spec types.InstrumentSpec, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Spec: spec, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind, or "" when err is not a resolution error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// SpotUnavailable builds the error reported when no spot quote could be
// obtained for an option spec.
func SpotUnavailable(spec types.InstrumentSpec, err error) *Error {
	return newError(KindSpotUnavailable, spec, err, "no spot price for %s", spec.Underlying)
}
