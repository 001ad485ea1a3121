package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"p2p-mesh/internal/paths"
	"p2p-mesh/internal/p2p"
)

type options struct {
	Name  string
	IP    string
	Port  int
	Color bool
	Debug bool

	NoTCP bool
	NoUDP bool

	Connect string // ip:port of a node to ask for a link over UDP
	Dial    string // comma-separated host:port list to dial over TCP

	SourcePort  int
	Dedupe      time.Duration
	DialTimeout time.Duration
	ReadTimeout time.Duration

	DataDir string
	NoBook  bool
	Rejoin  int

	MetricsAddr string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.Name, "name", "anon", "display name")
	flag.StringVar(&o.IP, "ip", p2p.DefaultBindIP, "listen IP for TCP and UDP")
	flag.IntVar(&o.Port, "port", 5000, "listen port for TCP and UDP (0 picks one)")
	flag.BoolVar(&o.Color, "color", true, "colorize peer names")
	flag.BoolVar(&o.Debug, "debug", false, "enable debug logs")

	flag.BoolVar(&o.NoTCP, "no-tcp", false, "do not accept TCP links")
	flag.BoolVar(&o.NoUDP, "no-udp", false, "do not answer discovery requests")

	flag.StringVar(&o.Connect, "connect", "", "ask ip:port to connect to us via UDP discovery")
	flag.StringVar(&o.Dial, "dial", "", "comma-separated host:port list to dial over TCP on startup")

	flag.IntVar(&o.SourcePort, "source-port", 0, "source port for discovery datagrams (0 = ephemeral)")
	flag.DurationVar(&o.Dedupe, "dedupe", 2*time.Second, "ignore repeat discovery datagrams within this window (0 disables)")
	flag.DurationVar(&o.DialTimeout, "dial-timeout", p2p.DefaultDialTimeout, "TCP dial timeout")
	flag.DurationVar(&o.ReadTimeout, "read-timeout", 0, "drop peers idle for this long (0 disables)")

	flag.StringVar(&o.DataDir, "data", paths.DefaultDataDir(), "directory for the peer book")
	flag.BoolVar(&o.NoBook, "no-book", false, "do not persist peers")
	flag.IntVar(&o.Rejoin, "rejoin", 0, "redial up to N peers from the book on startup")

	flag.StringVar(&o.MetricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9100)")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	app := newApp(opts, console{in: os.Stdin, out: os.Stdout})

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatalf("start node: %v", err)
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("stop node: %v", err)
	}
}
