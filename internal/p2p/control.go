package p2p

import (
	"errors"
	"fmt"

	"p2p-mesh/internal/events"
)

// Control events are synthesized locally and never travel on the wire.
const (
	EventConnect           = "connect"            // payload *Peer
	EventDisconnect        = "disconnect"         // payload *Peer
	EventConnectionRequest = "connection_request" // payload "ip:port"
)

var (
	ErrReservedEvent  = errors.New("p2p: reserved event name")
	ErrClosed         = errors.New("p2p: network closed")
	ErrAlreadyServing = errors.New("p2p: already serving")
	ErrUnknownPeer    = errors.New("p2p: unknown peer")
	ErrNoListenPort   = errors.New("p2p: no tcp port to announce")
)

// IsReserved reports whether name is a control event.
func IsReserved(name string) bool {
	switch name {
	case EventConnect, EventDisconnect, EventConnectionRequest:
		return true
	}
	return false
}

// DataHandler adapts a function taking a packet's data string.
func DataHandler(fn func(data string) error) events.Handler {
	return func(payload any) error {
		s, ok := payload.(string)
		if !ok {
			return fmt.Errorf("expected data string, got %T", payload)
		}
		return fn(s)
	}
}

// PeerHandler adapts a function for connect and disconnect.
func PeerHandler(fn func(p *Peer) error) events.Handler {
	return func(payload any) error {
		p, ok := payload.(*Peer)
		if !ok {
			return fmt.Errorf("expected *Peer, got %T", payload)
		}
		return fn(p)
	}
}

// AddrHandler adapts a function for connection_request.
func AddrHandler(fn func(addr string) error) events.Handler {
	return DataHandler(fn)
}
