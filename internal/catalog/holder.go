package catalog

import "sync/atomic"

// Holder publishes the current catalog snapshot. Readers get a consistent
// catalog for the duration of a resolution while a refresh swaps in its
// replacement.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder seeded with c, which may be nil.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	if c != nil {
		h.current.Store(c)
	}
	return h
}

// Current returns the published snapshot, or nil before the first load.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Swap publishes c and returns the snapshot it replaced.
func (h *Holder) Swap(c *Catalog) *Catalog {
	return h.current.Swap(c)
}
