// Package metrics holds the gate's Prometheus collectors.
//
//   - gate_catalog_records{source,state}      records loaded/excluded by the last refresh
//   - gate_catalog_refresh_total{source,result}
//   - gate_catalog_excluded_total{reason}     excluded records by validation reason
//   - gate_resolutions_total{class,result}    resolution outcomes (ok or error kind)
//   - gate_validation_halted                  1 when the last daily validation halted
//   - gate_admissions_total{result,reason}    risk admissions (admitted|rejected)
//   - gate_portfolio_heat_ratio               heat after the last admission
//   - gate_account_equity                     current account equity
//   - gate_circuit_breaker_active             1 while the breaker is tripped
//
// Collectors register with the default registry in init() and are served at
// /metrics by `gate serve`.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CatalogRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gate_catalog_records",
			Help: "Instrument records in the last catalog build",
		},
		[]string{"source", "state"},
	)

	CatalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_catalog_refresh_total",
			Help: "Catalog refresh attempts by result",
		},
		[]string{"source", "result"},
	)

	CatalogExcluded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_catalog_excluded_total",
			Help: "Records excluded at catalog load, by reason",
		},
		[]string{"reason"},
	)

	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_resolutions_total",
			Help: "Symbol resolutions by instrument class and result",
		},
		[]string{"class", "result"},
	)

	ValidationHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_validation_halted",
			Help: "1 when the last daily validation halted trading",
		},
	)

	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_admissions_total",
			Help: "Risk admission decisions",
		},
		[]string{"result", "reason"},
	)

	PortfolioHeat = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_portfolio_heat_ratio",
			Help: "Open risk as a fraction of account equity",
		},
	)

	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_account_equity",
			Help: "Account equity in INR",
		},
	)

	CircuitBreaker = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_circuit_breaker_active",
			Help: "1 while the daily circuit breaker is tripped",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CatalogRecords,
		CatalogRefreshes,
		CatalogExcluded,
		Resolutions,
		ValidationHalted,
		Admissions,
		PortfolioHeat,
		AccountEquity,
		CircuitBreaker,
	)
}

// Bool maps a flag onto a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
