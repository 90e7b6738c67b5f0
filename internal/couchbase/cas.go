package couchbase

// CasManager combines CAS getting and setting capabilities.
type CasManager interface {
	CasGetter
	CasSetter
}

// CasSetter is implemented by documents that want the CAS of the last read or write.
// CAS (Compare-And-Swap) values are used for optimistic concurrency control.
type CasSetter interface {
	SetCas(cas uint64)
}

// CasGetter is implemented by documents that expose their CAS.
type CasGetter interface {
	GetCas() uint64
}

// Cas can be embedded in documents that need CAS tracking.
type Cas struct {
	c uint64
}

// GetCas returns the current CAS value.
func (c *Cas) GetCas() uint64 {
	return c.c
}

// SetCas updates the CAS value.
func (c *Cas) SetCas(cas uint64) {
	c.c = cas
}
