package fdm

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers branch on these with errors.Is.
var (
	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Connect was called on a live connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrBusy indicates a command was issued while another one was still
	// waiting for its reply. The protocol has no correlation ids, so only
	// one exchange may be in flight per connection.
	ErrBusy = errors.New("command already in flight")

	// ErrTimeout indicates no reply arrived within the exchange timeout.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrConnectionClosed indicates the connection was torn down by
	// Disconnect while a command was still waiting for its reply.
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionError wraps a transport fault while opening the connection.
type ConnectionError struct {
	Addr  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %s", e.Addr, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// DisconnectionError wraps a transport fault while closing the connection.
type DisconnectionError struct {
	Cause error
}

func (e *DisconnectionError) Error() string {
	return fmt.Sprintf("disconnect: %s", e.Cause)
}

func (e *DisconnectionError) Unwrap() error { return e.Cause }

// SendError wraps a transport fault while transmitting a command.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send: %s", e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }

// ReceiveError wraps a transport fault while waiting for a reply.
type ReceiveError struct {
	Cause error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive: %s", e.Cause)
}

func (e *ReceiveError) Unwrap() error { return e.Cause }

// ParseError indicates a reply did not match the grammar expected for the
// command that produced it. Raw carries the offending reply text.
type ParseError struct {
	Cmd string
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s reply %q", e.Cmd, e.Raw)
}

// ValidationError indicates a caller-supplied parameter was out of range.
// Nothing is transmitted when validation fails.
type ValidationError struct {
	Param    string
	Value    float64
	Min, Max float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %g out of range [%g, %g]", e.Param, e.Value, e.Min, e.Max)
}
