package venue

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy of §7 — a classification, not a Go error type.
// Callers branch on Kind, never on message text.
type Kind int

const (
	// KindTransient covers HTTP 5xx, rate limiting, and disconnects. The
	// caller retries with backoff; an individual failed place/cancel
	// leaves the level's slot unchanged so the next tick re-attempts.
	KindTransient Kind = iota
	// KindFatal covers auth failures and unknown instruments. The
	// supervisor stops both executors.
	KindFatal
	// KindReconciliation is a Tracked Order observed by the event stream
	// that doesn't match any level's client order id. Logged and ignored.
	KindReconciliation
	// KindRejected is a terminal, non-filled order. The slot clears on
	// the next tick and the level becomes re-eligible.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindReconciliation:
		return "reconciliation"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// classifiedError pairs an underlying error with its §7 kind.
type classifiedError struct {
	kind Kind
	err  error
}

func (c *classifiedError) Error() string { return fmt.Sprintf("%s: %s", c.kind, c.err) }
func (c *classifiedError) Unwrap() error { return c.err }

// Classify wraps err with a Kind so callers can branch on KindOf without
// string-matching venue messages.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: kind, err: err}
}

// KindOf extracts the Kind from an error produced by Classify. Unclassified
// errors (e.g. context cancellation) default to KindTransient, so a bare
// ctx.Err() never gets mistaken for a fatal condition.
func KindOf(err error) Kind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindTransient
}

var (
	// ErrNotImplemented marks the unimplemented cross-account fund-transfer
	// stub (§9 Open Question (b)).
	ErrNotImplemented = errors.New("venue: operation not implemented")
	// ErrNotConnected is returned by operations attempted before a Venue
	// session has completed its initial handshake.
	ErrNotConnected = errors.New("venue: not connected")
)
