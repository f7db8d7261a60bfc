package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned by Send when the push channel is not open
	ErrNotConnected = errors.New("push channel not connected")
	// ErrUnauthorized is returned when the authority rejects the bearer credential
	ErrUnauthorized = errors.New("unauthorized")
)

// ConnectionError means the push handshake did not complete
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NetworkError is a transport-level failure of a pull request or a push send
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means a pull request did not complete within its bound
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
}

// RejectedError is a well-formed refusal from the authority
type RejectedError struct {
	Status int
	Reason string
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rejected (%d %s): %s", e.Status, e.Reason, e.Detail)
	}
	return fmt.Sprintf("rejected (%d %s)", e.Status, e.Reason)
}

// IsRejected reports whether err is a RejectedError with the given reason
func IsRejected(err error, reason string) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Reason == reason
}
