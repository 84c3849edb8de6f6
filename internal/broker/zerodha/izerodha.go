package zerodha

import (
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteClient is the subset of the Kite Connect REST client the gate calls.
// *kiteconnect.Client satisfies it; tests substitute a fake.
type kiteClient interface {
	// GetInstruments downloads the full instrument master dump
	GetInstruments() (kiteconnect.Instruments, error)

	// GetInstrumentsByExchange downloads the dump for one exchange
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)

	// GetLTP returns last traded prices keyed by "EXCHANGE:TRADINGSYMBOL"
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
}

var _ kiteClient = (*kiteconnect.Client)(nil)
