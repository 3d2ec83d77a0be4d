// Package tablecore holds the small set of error kinds shared across
// transport, the request dispatcher, the global table, and disk
// storage, so callers can classify a failure with errors.Is rather
// than string-matching.
package tablecore

import (
	"errors"
	"fmt"
)

// Kind classifies a tablecore.Error. The set is closed: it mirrors the
// failure modes the dispatcher and Runtime know how to react to.
type Kind int

const (
	// Unknown is the zero Kind; Error values constructed by this
	// package never use it.
	Unknown Kind = iota

	// TransportFatal marks a fabric failure severe enough that the
	// process should abort rather than retry.
	TransportFatal

	// ShardNotReady marks a request against a shard that is not
	// currently SERVING (UNASSIGNED, ASSIGNED, or transiently
	// CHECKPOINTING). The dispatcher re-enqueues on this kind.
	ShardNotReady

	// KeyAbsent marks a get that found no value for its key.
	KeyAbsent

	// MarshalError marks a key/value marshal or unmarshal failure.
	MarshalError

	// DiskIO marks a failed read or write against a block, record, or
	// checkpoint file.
	DiskIO

	// ProtocolViolation marks a malformed frame or an unsupported
	// wire feature (e.g. a compressed record file).
	ProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case TransportFatal:
		return "TransportFatal"
	case ShardNotReady:
		return "ShardNotReady"
	case KeyAbsent:
		return "KeyAbsent"
	case MarshalError:
		return "MarshalError"
	case DiskIO:
		return "DiskIO"
	case ProtocolViolation:
		return "ProtocolViolation"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying one of the Kind values above plus
// the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error of the same Kind, so callers
// can write errors.Is(err, tablecore.New(tablecore.ShardNotReady, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind from a message.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Err: errors.New(msg)}
}

// Wrap builds an Error of the given kind around err, or returns nil if
// err is nil.
func Wrap(k Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: err}
}

// Sentinel errors for the common cases callers match against directly.
var (
	ErrShardNotReady          = New(ShardNotReady, "shard not ready")
	ErrKeyAbsent              = New(KeyAbsent, "key absent")
	ErrCompressionUnsupported = New(ProtocolViolation, "compression is not supported")
)
