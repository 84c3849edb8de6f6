package riskhttp

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/risk"
	"trading-gate/internal/types"
)

const maxJSONBodyBytes int64 = 1 << 16

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	admitter interfaces.RiskAdmitter
	now      func() time.Time
}

// NewHandler serves admitter under /v1/risk plus /healthz and /metrics.
func NewHandler(admitter interfaces.RiskAdmitter) http.Handler {
	s := &httpServer{admitter: admitter, now: time.Now}
	mux := http.NewServeMux()

	mux.Handle(statePath, methodHandlers(map[string]handlerFunc{http.MethodGet: s.getState}))
	mux.Handle(canAdmitPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.canAdmit}))
	mux.Handle(admitPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.admit}))
	mux.Handle(entriesPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.registerEntry}))
	mux.Handle(exitsPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.registerExit}))
	mux.Handle(checkPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.check}))
	mux.Handle(resetPath, methodHandlers(map[string]handlerFunc{http.MethodPost: s.reset}))
	mux.Handle(healthPath, methodHandlers(map[string]handlerFunc{http.MethodGet: s.health}))
	mux.Handle(metricsPath, promhttp.Handler())

	return mux
}

func methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
}

func (s *httpServer) getState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.admitter.Snapshot(r.Context())
	if err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *httpServer) canAdmit(w http.ResponseWriter, r *http.Request) {
	var req canAdmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := s.admitter.CanAdmit(r.Context(), req.ProposedRisk)
	if err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *httpServer) admit(w http.ResponseWriter, r *http.Request) {
	var p types.Position
	if !decodeJSON(w, r, &p) {
		return
	}
	d, err := s.admitter.Admit(r.Context(), p)
	if err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *httpServer) registerEntry(w http.ResponseWriter, r *http.Request) {
	var p types.Position
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := s.admitter.RegisterEntry(r.Context(), p); err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse{Status: "ok"})
}

func (s *httpServer) registerExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PositionID) == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "position_id is required")
		return
	}
	if err := s.admitter.RegisterExit(r.Context(), req.PositionID, req.RealizedPnL); err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func (s *httpServer) check(w http.ResponseWriter, r *http.Request) {
	active, err := s.admitter.CheckDailyLoss(r.Context())
	if err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{CircuitBreaker: active})
}

func (s *httpServer) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	day := expiry.Today(s.now())
	if req.Day != "" {
		d, err := time.Parse("2006-01-02", req.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid day %q", req.Day))
			return
		}
		day = d
	}
	if err := s.admitter.ResetDay(r.Context(), day, req.Equity); err != nil {
		writeRiskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func (s *httpServer) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.admitter.Snapshot(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return false
	}
	return true
}

func writeRiskError(w http.ResponseWriter, err error) {
	code := codeOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, risk.ErrInvalidPosition), errors.Is(err, risk.ErrNegativeRisk):
		status = http.StatusBadRequest
	case errors.Is(err, risk.ErrDuplicatePosition):
		status = http.StatusConflict
	case errors.Is(err, risk.ErrUnknownPosition):
		status = http.StatusNotFound
	}
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Code: code, Error: message})
}
