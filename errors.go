package knxnetip

import "errors"

// Sentinel errors returned by the address, telegram and client APIs.
//
// These are wrapped with fmt.Errorf("%w: ...", ...) at the call site to add
// context; callers should match against the sentinel with errors.Is.
var (
	// ErrInvalidFormat is returned when a string address fails to parse.
	ErrInvalidFormat = errors.New("knxnetip: invalid address format")

	// ErrOutOfRange is returned when an address component is outside its
	// valid bit range.
	ErrOutOfRange = errors.New("knxnetip: address component out of range")

	// ErrUnknownGroupAddress is returned by read/write operations against a
	// group address that has no configured DPT and allow_unknown_gpa is
	// false.
	ErrUnknownGroupAddress = errors.New("knxnetip: unknown group address")

	// ErrTimeout is returned when a synchronous call does not complete
	// within its caller-supplied timeout.
	ErrTimeout = errors.New("knxnetip: timeout")

	// ErrNotConnected is returned by operations requiring an active socket
	// or tunnelling session.
	ErrNotConnected = errors.New("knxnetip: not connected")

	// ErrInvalidFrame is returned when a frame fails outer-header
	// validation (length mismatch, bad header size/version).
	ErrInvalidFrame = errors.New("knxnetip: invalid frame")

	// ErrClosed is returned by operations on a client that has been shut
	// down.
	ErrClosed = errors.New("knxnetip: client closed")
)
