package hub

import "strings"

// BatchKind classifies the result of handling a batch.
type BatchKind int

const (
	// BatchOK means every record was handled.
	BatchOK BatchKind = iota
	// BatchSingle means exactly one record failed.
	BatchSingle
	// BatchMany means more than one record failed.
	BatchMany
)

func (k BatchKind) String() string {
	switch k {
	case BatchOK:
		return "ok"
	case BatchSingle:
		return "single"
	case BatchMany:
		return "many"
	default:
		return "unknown"
	}
}

// BatchResult is the fold of per-record failures over a batch.
type BatchResult struct {
	errs []error
}

// Collect builds a BatchResult from the captured errors, ignoring nils.
func Collect(errs ...error) BatchResult {
	var r BatchResult
	for _, err := range errs {
		r = r.Add(err)
	}
	return r
}

// Add returns a result with err appended. A nil err is a no-op.
func (r BatchResult) Add(err error) BatchResult {
	if err == nil {
		return r
	}
	errs := make([]error, len(r.errs), len(r.errs)+1)
	copy(errs, r.errs)
	return BatchResult{errs: append(errs, err)}
}

func (r BatchResult) Kind() BatchKind {
	switch len(r.errs) {
	case 0:
		return BatchOK
	case 1:
		return BatchSingle
	default:
		return BatchMany
	}
}

// Errors returns the captured failures in capture order.
func (r BatchResult) Errors() []error {
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Err maps the result to a batch outcome: nil, the single failure unchanged,
// or a *BatchError holding exactly the captured failures.
func (r BatchResult) Err() error {
	switch r.Kind() {
	case BatchOK:
		return nil
	case BatchSingle:
		return r.errs[0]
	default:
		return &BatchError{errs: r.Errors()}
	}
}

// BatchError is the combined failure of a batch in which more than one record
// failed. Captured errors are kept as they are, nested combinations included.
type BatchError struct {
	errs []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Errors returns the captured failures in capture order.
func (e *BatchError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

func (e *BatchError) Unwrap() []error {
	return e.Errors()
}

// Failures returns the record failures carried by a batch outcome: none for
// nil, the constituents of a *BatchError, otherwise err itself.
func Failures(err error) []error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BatchError); ok {
		return be.Errors()
	}
	return []error{err}
}

// KindOf classifies a batch outcome returned by a BatchHandler.
func KindOf(err error) BatchKind {
	return Collect(Failures(err)...).Kind()
}
