package classify

import (
	"errors"
)

// Kind groups failures by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindInputMalformed
	KindSourceNotFound
	KindModelNotFound
	KindProcessing
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindInputMalformed:
		return "input malformed"
	case KindSourceNotFound:
		return "source not found"
	case KindModelNotFound:
		return "model not found"
	case KindProcessing:
		return "processing failure"
	case KindTransfer:
		return "transfer failure"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind and the step that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
