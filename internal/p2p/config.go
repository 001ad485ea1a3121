package p2p

import (
	"time"

	"p2p-mesh/internal/metrics"
	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/telemetry"
)

const (
	DefaultBindIP      = "0.0.0.0"
	DefaultDialTimeout = 5 * time.Second
)

// PeerBook remembers peers across runs. storage/peerbolt implements it.
type PeerBook interface {
	NoteConnected(addr string, inbound bool) error
	NoteDisconnected(addr string) error
}

type Config struct {
	BindIP string // listen IP for both TCP and UDP
	Port   int    // listen port for both TCP and UDP; 0 picks one for TCP and reuses it for UDP

	DiscoverySourcePort int           // source port of outbound discovery datagrams; 0 = ephemeral
	DiscoveryDedupeTTL  time.Duration // ignore repeat datagrams from the same ip:port within this window; 0 disables

	DialTimeout  time.Duration // outbound TCP connect timeout
	ReadTimeout  time.Duration // idle read timeout per peer; 0 = none
	MaxFrameSize int           // largest accepted frame body

	Transport netx.Transport   // stream transport
	Logger    telemetry.Logger // system logger
	Debug     bool             // flag for showing hidden logs to debug
	Metrics   *metrics.Metrics // collectors; nil creates a private set
	Book      PeerBook         // optional peer persistence
}

func (c Config) withDefaults() Config {
	if c.BindIP == "" {
		c.BindIP = DefaultBindIP
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Transport == nil {
		c.Transport = netx.NewTCPTransport()
	}
	if c.Logger == nil {
		c.Logger = telemetry.Discard()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New("mesh")
	}
	return c
}
