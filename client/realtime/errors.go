package realtime

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the realtime core. None of these are ever returned
// to the hosting application as a surfaced error; they are logged and, for
// transport failures, reflected in the connection status.
var (
	// ErrTransport marks network or socket failures. Retried per the
	// reconnection policy up to the attempt cap.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol marks malformed or unexpected frames. Dropped and
	// logged, never fatal to the connection.
	ErrProtocol = errors.New("protocol violation")

	// ErrAuth marks a handshake rejected by the server. Not retried; the
	// application must re-authenticate externally.
	ErrAuth = errors.New("handshake rejected")
)

var errMissingEvent = errors.New("frame has no event name")

// transportErr wraps err as a transport failure.
func transportErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// protocolErr wraps err as a dropped-frame protocol violation.
func protocolErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrProtocol, err)
}
