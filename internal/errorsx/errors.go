// Package errorsx defines the execution core's error taxonomy (spec §7)
// and wraps them with structured context using github.com/yanun0323/errors.
package errorsx

import (
	"fmt"

	yerrors "github.com/yanun0323/errors"
)

// Sentinel errors. Compare with errors.Is; errors built by RiskRejected
// carry a reason via RejectReason and should not be compared by value alone.
var (
	// ErrTransport is a venue I/O failure, returned directly to the caller
	// (for example an order submitted while the venue is disconnected, or
	// a websocket dial, read or write that failed).
	ErrTransport = yerrors.New("transport error")

	// ErrTransportTimeout is a venue round-trip that exceeded its
	// per-request timeout.
	ErrTransportTimeout = yerrors.New("transport timeout")

	// ErrProtocol is a malformed venue message; dropped, not retried.
	ErrProtocol = yerrors.New("protocol error")

	// ErrRiskRejected is returned synchronously from order submission
	// when the risk engine denies admission. Never dispatched as an
	// event.
	ErrRiskRejected = yerrors.New("risk rejected")

	// ErrBufferFull names the condition of a ring buffer with no free
	// slot. Dispatcher.Publish reports it as the BufferFull drop reason of
	// its PublishResult, not as this error.
	ErrBufferFull = yerrors.New("buffer full")

	// ErrNotRunning names the condition of a publish after Stop.
	// Dispatcher.Publish reports it as the NotRunning drop reason of its
	// PublishResult, not as this error.
	ErrNotRunning = yerrors.New("dispatcher not running")

	// ErrUnknownVenue is returned when an order or cancel targets a
	// venue that was never registered or has been unregistered after a
	// VenueFatal.
	ErrUnknownVenue = yerrors.New("unknown venue")

	// ErrUnknownOrder is returned by cancel/status for an order id the
	// router has no record of (already terminal, or never admitted).
	ErrUnknownOrder = yerrors.New("unknown order")

	// ErrVenueFatal marks a venue connection as permanently lost.
	ErrVenueFatal = yerrors.New("venue fatal")

	// ErrNumericsUnavailable is returned by a numerics backend call that
	// could not produce a result; fatal only to the calling strategy's
	// current tick.
	ErrNumericsUnavailable = yerrors.New("numerics unavailable")

	// ErrInvalidOrder is returned for a structurally invalid order
	// (missing price on a limit type, non-positive volume, ...).
	ErrInvalidOrder = yerrors.New("invalid order")

	// ErrInvalidTransition is returned by the strategy lifecycle for an
	// illegal state transition.
	ErrInvalidTransition = yerrors.New("invalid state transition")
)

// RejectReason is a coarse, stable reason code attached to a risk
// rejection; see risk.Reason for the full enumeration.
type RejectReason string

// RiskRejected wraps ErrRiskRejected with the specific admission reason
// that failed (spec §4.4, checks 1-6).
func RiskRejected(reason RejectReason) error {
	return yerrors.Wrap(ErrRiskRejected, string(reason))
}

// Wrap attaches a message to err, or returns nil for a nil err.
func Wrap(err error, msg string) error {
	return yerrors.Wrap(err, msg)
}

// Wrapf attaches a formatted message to err.
func Wrapf(err error, format string, args ...any) error {
	return yerrors.Wrap(err, fmt.Sprintf(format, args...))
}

// With attaches a structured key/value to err for downstream logging.
func With(err error, key string, value any) error {
	return yerrors.Wrap(err, fmt.Sprintf("%s=%v", key, value))
}
