// Package riskhttp exposes a RiskAdmitter over HTTP so that every strategy
// process on every host admits against one authoritative risk state, and
// provides the matching client.
package riskhttp

import (
	"errors"

	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
)

const (
	statePath    = "/v1/risk/state"
	canAdmitPath = "/v1/risk/can-admit"
	admitPath    = "/v1/risk/admit"
	entriesPath  = "/v1/risk/entries"
	exitsPath    = "/v1/risk/exits"
	checkPath    = "/v1/risk/check"
	resetPath    = "/v1/risk/reset"
	healthPath   = "/healthz"
	metricsPath  = "/metrics"
)

// Error codes carried in error responses so the client can restore the
// sentinel errors of package risk.
const (
	codeInvalidPosition   = "INVALID_POSITION"
	codeNegativeRisk      = "NEGATIVE_RISK"
	codeDuplicatePosition = "DUPLICATE_POSITION"
	codeUnknownPosition   = "UNKNOWN_POSITION"
	codeBadRequest        = "BAD_REQUEST"
	codeInternal          = "INTERNAL"
)

var codeErrors = map[string]error{
	codeInvalidPosition:   risk.ErrInvalidPosition,
	codeNegativeRisk:      risk.ErrNegativeRisk,
	codeDuplicatePosition: risk.ErrDuplicatePosition,
	codeUnknownPosition:   risk.ErrUnknownPosition,
}

func codeOf(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return codeInternal
}

type errorResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type canAdmitRequest struct {
	ProposedRisk decimal.Decimal `json:"proposed_risk"`
}

type exitRequest struct {
	PositionID  string          `json:"position_id"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

type resetRequest struct {
	// Day is YYYY-MM-DD; empty means today in IST.
	Day    string          `json:"day,omitempty"`
	Equity decimal.Decimal `json:"equity"`
}

type checkResponse struct {
	CircuitBreaker bool `json:"circuit_breaker"`
}

type okResponse struct {
	Status string `json:"status"`
}
