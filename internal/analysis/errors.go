package analysis

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyClaimed means the clip id has been analyzed or is being analyzed.
	ErrAlreadyClaimed = errors.New("clip already claimed for analysis")
	ErrQueueFull      = errors.New("analysis queue is full")
	ErrNotReserved    = errors.New("clip was not reserved before enqueue")
	ErrStopped        = errors.New("scheduler stopped")
)

// ErrorKind classifies classifier failures.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindQuota     ErrorKind = "quota"
	KindTransport ErrorKind = "transport"
)

// ClassifierError wraps a failed classification attempt.
type ClassifierError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("classifier %s", e.Kind)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

func classifierErr(kind ErrorKind, err error) *ClassifierError {
	return &ClassifierError{Kind: kind, Err: err}
}

// KindOf reports the ErrorKind of err, treating unknown errors as transport
// failures and deadline errors as timeouts.
func KindOf(err error) ErrorKind {
	var ce *ClassifierError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}
