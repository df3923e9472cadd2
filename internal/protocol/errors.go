package protocol

import "fmt"

// ProtocolError reports a malformed or unsupported message
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectivityError reports a socket-level failure talking to Addr.
// Callers discard the connection and may retry with a fresh one.
type ConnectivityError struct {
	Addr string
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection to %s failed", e.Addr)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// ApplicationError is a well-formed response that rejected the request
type ApplicationError struct {
	Code   int
	Reason string
	Op     string
}

func (e *ApplicationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("request rejected: %d %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s rejected: %d %s", e.Op, e.Code, e.Reason)
}
