package zerodha

import (
	"strings"
	"sync"
)

// Kite quotes indices under display names rather than their F&O underlying.
var indexQuoteKeys = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
	"NIFTYNXT50": "NSE:NIFTY NEXT 50",
	"SENSEX":     "BSE:SENSEX",
	"BANKEX":     "BSE:BANKEX",
}

// quoteKeyMapper manages the bidirectional mapping between underlyings and
// Kite quote keys.
type quoteKeyMapper struct {
	underlyingToKey map[string]string
	keyToUnderlying map[string]string
	mu              sync.RWMutex
}

// newQuoteKeyMapper seeds the index keys and applies config overrides
func newQuoteKeyMapper(overrides map[string]string) *quoteKeyMapper {
	m := &quoteKeyMapper{
		underlyingToKey: make(map[string]string),
		keyToUnderlying: make(map[string]string),
	}
	for u, k := range indexQuoteKeys {
		m.addMapping(u, k)
	}
	for u, k := range overrides {
		m.addMapping(strings.ToUpper(u), k)
	}
	return m
}

// addMapping adds an underlying-key mapping
func (m *quoteKeyMapper) addMapping(underlying, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.underlyingToKey[underlying] = key
	m.keyToUnderlying[key] = underlying
}

// quoteKey returns the key to quote an underlying with. Unknown underlyings
// are assumed to be NSE cash symbols and remembered as such.
func (m *quoteKeyMapper) quoteKey(underlying string) string {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))

	m.mu.RLock()
	key, ok := m.underlyingToKey[underlying]
	m.mu.RUnlock()
	if ok {
		return key
	}

	key = "NSE:" + underlying
	m.addMapping(underlying, key)
	return key
}

// underlying returns the underlying a key was registered for
func (m *quoteKeyMapper) underlying(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.keyToUnderlying[key]
	return u, ok
}
