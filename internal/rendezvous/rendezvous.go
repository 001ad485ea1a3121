// Package rendezvous implements the one-hop UDP discovery step.
//
// A node that wants a link sends a single datagram to another node's
// discovery port. The payload is the sender's TCP listen port as two
// big-endian bytes; the receiver takes the sender IP from the socket and
// connects back over TCP.
package rendezvous

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DatagramSize is the exact payload length of a discovery datagram.
const DatagramSize = 2

// ErrBadDatagram reports a datagram that does not carry a port.
var ErrBadDatagram = errors.New("rendezvous: bad datagram")

// EncodePort returns the discovery payload for a TCP listen port.
func EncodePort(port uint16) []byte {
	b := make([]byte, DatagramSize)
	binary.BigEndian.PutUint16(b, port)
	return b
}

// DecodePort parses a discovery payload.
func DecodePort(b []byte) (uint16, error) {
	if len(b) != DatagramSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrBadDatagram, len(b))
	}
	port := binary.BigEndian.Uint16(b)
	if port == 0 {
		return 0, fmt.Errorf("%w: port 0", ErrBadDatagram)
	}
	return port, nil
}

// Request is a decoded connect-back hint.
type Request struct {
	IP   net.IP
	Port uint16       // announced TCP port
	From *net.UDPAddr // datagram source
}

// Addr returns the TCP address to dial, e.g. "10.0.0.7:5000".
func (r Request) Addr() string {
	return net.JoinHostPort(r.IP.String(), strconv.Itoa(int(r.Port)))
}

// Listener receives discovery datagrams.
type Listener struct {
	conn *net.UDPConn
}

// Listen binds the discovery socket, e.g. "0.0.0.0:5000".
func Listen(bindAddr string) (*Listener, error) {
	lc := reuseAddrConfig(false)
	conn, err := lc.ListenPacket(context.Background(), "udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("rendezvous listen: %w", err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("rendezvous listen: not a UDPConn")
	}
	return &Listener{conn: udpConn}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Next blocks for the next datagram. ErrBadDatagram is per-datagram and the
// listener stays usable; after Close it returns net.ErrClosed.
func (l *Listener) Next() (Request, error) {
	buf := make([]byte, 64)
	n, from, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return Request{}, err
	}
	port, err := DecodePort(buf[:n])
	if err != nil {
		return Request{}, fmt.Errorf("from %s: %w", from, err)
	}
	return Request{IP: from.IP, Port: port, From: from}, nil
}

func (l *Listener) Close() error { return l.conn.Close() }

// Send emits one discovery datagram to target announcing tcpPort. The socket
// is bound to sourcePort (0 picks an ephemeral port).
func Send(ctx context.Context, sourcePort int, target string, tcpPort uint16) error {
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return fmt.Errorf("rendezvous resolve %s: %w", target, err)
	}

	lc := reuseAddrConfig(sourcePort != 0)
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", sourcePort))
	if err != nil {
		return fmt.Errorf("rendezvous bind source: %w", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	if _, err := conn.WriteTo(EncodePort(tcpPort), dst); err != nil {
		return fmt.Errorf("rendezvous send %s: %w", target, err)
	}
	return nil
}
