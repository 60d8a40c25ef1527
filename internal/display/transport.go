package display

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned once the display connection is gone for good.
// Callers treat it as terminal for the session.
var ErrTransportClosed = errors.New("display transport closed")

// ConnState is the connection health reported by a Transport.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Transport delivers text to the physical heads-up surface.
type Transport interface {
	State() ConnState
	ShowText(ctx context.Context, text string) error
}
