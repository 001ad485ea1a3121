// Package meshchat is a line-oriented chat room on top of the p2p mesh.
// Every typed line is broadcast as a "print" event; peers announce their
// display name with a "nick" event right after the link comes up.
package meshchat

import (
	"bufio"
	"context"
	"io"
	"sync"

	"p2p-mesh/internal/p2p"
	"p2p-mesh/internal/telemetry"
)

const (
	EventPrint = "print"
	EventNick  = "nick"
)

type Config struct {
	Name  string // display name announced to peers
	Color bool   // ANSI colors for peer names
}

type App struct {
	cfg    Config
	ui     Printer
	logger telemetry.Logger

	Net *p2p.Network

	namesMu sync.RWMutex
	names   map[string]string // peer ID -> announced name
}

func New(cfg Config, n *p2p.Network, ui Printer, logger telemetry.Logger) *App {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &App{
		cfg:    cfg,
		ui:     ui,
		logger: logger,
		Net:    n,
		names:  make(map[string]string),
	}
}

// Bind registers the chat handlers. Call it before the network serves.
func (a *App) Bind() {
	a.Net.On(p2p.EventConnect).Handle(p2p.PeerHandler(a.onConnect))
	a.Net.On(p2p.EventDisconnect).Handle(p2p.PeerHandler(a.onDisconnect))
	a.Net.On(p2p.EventConnectionRequest).Handle(p2p.AddrHandler(func(addr string) error {
		a.ui.Printf("\n[NET] connection request from %s\n", addr)
		a.ui.Prompt()
		return nil
	}))
}

func (a *App) onConnect(p *p2p.Peer) error {
	a.ui.Printf("\n[NET] %s connected\n", p)
	a.ui.Prompt()

	p.On(EventNick).Handle(p2p.DataHandler(func(name string) error {
		a.namesMu.Lock()
		a.names[p.ID()] = name
		a.namesMu.Unlock()
		return nil
	}))
	p.On(EventPrint).Handle(p2p.DataHandler(func(msg string) error {
		a.ui.Printf("\n<%s>: %s\n", a.peerName(p), msg)
		a.ui.Prompt()
		return nil
	}))

	if a.cfg.Name == "" {
		return nil
	}
	return p.Emit(EventNick, a.cfg.Name)
}

func (a *App) onDisconnect(p *p2p.Peer) error {
	a.ui.Printf("\n[NET] %s disconnected\n", displayName(a.nameOf(p.ID()), p.Address(), a.cfg.Color))
	a.ui.Prompt()

	a.namesMu.Lock()
	delete(a.names, p.ID())
	a.namesMu.Unlock()
	return nil
}

func (a *App) nameOf(id string) string {
	a.namesMu.RLock()
	defer a.namesMu.RUnlock()
	return a.names[id]
}

func (a *App) peerName(p *p2p.Peer) string {
	return displayName(a.nameOf(p.ID()), p.Address(), a.cfg.Color)
}

// Run reads commands from in until /quit, end of input or ctx is done.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			a.logger.Printf("chat input: %v", err)
		}
	}()

	PrintBanner(a.ui, a)
	a.ui.Prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if a.handleCommand(ctx, line) {
				a.ui.Println("quitting...")
				return nil
			}
			a.ui.Prompt()
		}
	}
}
