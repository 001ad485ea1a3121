package meshchat

import (
	"context"
	"strconv"
	"strings"

	"p2p-mesh/internal/netx"
	"p2p-mesh/internal/p2p"
)

// handleCommand runs one input line and reports whether the user quit.
func (a *App) handleCommand(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "/quit", line == "/exit":
		return true

	case line == "/help":
		PrintCommands(a.ui)

	case line == "/me":
		a.ui.Println()
		a.ui.Println("== You ==")
		a.ui.Printf("  Name:       %s\n", a.cfg.Name)
		a.ui.Printf("  NodeID:     %s\n", a.Net.ID())
		a.ui.Printf("  TCP:        %s\n", a.Net.ListenAddr())
		if udp := a.Net.DiscoveryAddr(); udp != nil {
			a.ui.Printf("  UDP:        %s\n", udp)
		}
		a.ui.Printf("  Peers:      %d\n", a.Net.PeerCount())
		a.ui.Println()

	case line == "/peers":
		a.printPeers()

	case line == "/events":
		a.ui.Printf("bound events: %s\n", strings.Join(a.Net.Events().Names(), ", "))

	case strings.HasPrefix(line, "/connect"):
		fields := strings.Fields(line)
		if len(fields) != 3 {
			a.ui.Println("usage: /connect <ip> <port>")
			return false
		}
		port, err := strconv.Atoi(fields[2])
		if err != nil {
			a.ui.Printf("bad port: %v\n", err)
			return false
		}
		if err := a.Net.Connect(fields[1], port); err != nil {
			a.ui.Printf("connect: %v\n", err)
		}

	case strings.HasPrefix(line, "/dial"):
		addr := strings.TrimSpace(strings.TrimPrefix(line, "/dial"))
		if addr == "" {
			a.ui.Println("usage: /dial <host:port>")
			return false
		}
		if _, err := a.Net.ConnectTo(ctx, netx.Addr(addr)); err != nil {
			a.ui.Printf("dial: %v\n", err)
		}

	case strings.HasPrefix(line, "/to "):
		fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "/to")), " ", 2)
		if len(fields) != 2 {
			a.ui.Println("usage: /to <peer-id> <message>")
			return false
		}
		p := a.findPeer(fields[0])
		if p == nil {
			a.ui.Printf("no peer matches %q\n", fields[0])
			return false
		}
		if err := a.Net.EmitTo(p.ID(), EventPrint, fields[1]); err != nil {
			a.ui.Printf("send: %v\n", err)
		}

	case strings.HasPrefix(line, "/say "):
		a.say(strings.TrimSpace(strings.TrimPrefix(line, "/say")))

	case strings.HasPrefix(line, "/"):
		a.ui.Println("unknown command")

	default:
		a.say(line)
	}
	return false
}

func (a *App) say(msg string) {
	if err := a.Net.Emit(EventPrint, msg); err != nil {
		a.ui.Printf("[NET] dropped peers: %v\n", err)
	}
}

// findPeer matches a full peer ID or a unique prefix of one.
func (a *App) findPeer(prefix string) *p2p.Peer {
	var match *p2p.Peer
	for _, p := range a.Net.Peers() {
		if !strings.HasPrefix(p.ID(), prefix) {
			continue
		}
		if match != nil {
			return nil
		}
		match = p
	}
	return match
}

func (a *App) printPeers() {
	peers := a.Net.Peers()
	if len(peers) == 0 {
		a.ui.Println("no peers connected")
		return
	}

	a.ui.Println()
	a.ui.Println("Connected peers:")
	a.ui.Printf("%-16s  %-10s  %-8s  %s\n", "NAME", "ID", "DIR", "ADDR")
	a.ui.Printf("%-16s  %-10s  %-8s  %s\n", "----", "--", "---", "----")

	for _, p := range peers {
		dir := "out"
		if p.Inbound() {
			dir = "in"
		}
		a.ui.Printf("%-16s  %-10s  %-8s  %s\n", a.peerName(p), shortID(p.ID()), dir, p.Address())
	}
	a.ui.Println()
}
