package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"p2p-mesh/internal/bootstrap"
	"p2p-mesh/internal/meshchat"
	"p2p-mesh/internal/p2p"
	"p2p-mesh/internal/paths"
	"p2p-mesh/internal/storage/peerbolt"
	"p2p-mesh/internal/telemetry"
)

type console struct {
	in  io.Reader
	out io.Writer
}

func newApp(opts options, c console) *fx.App {
	return fx.New(
		fx.Supply(opts, c),
		fx.Provide(
			newLogger,
			newBook,
			newNetwork,
			newChat,
		),
		fx.Invoke(registerMetrics, registerNode),
		fx.NopLogger,
	)
}

func newLogger(c console) telemetry.Logger {
	return log.New(c.out, "", log.LstdFlags)
}

// newBook opens the peer book; it yields nil when persistence is off.
func newBook(lc fx.Lifecycle, opts options) (*peerbolt.Store, error) {
	if opts.NoBook {
		return nil, nil
	}
	path, err := paths.BookPath(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	book, err := peerbolt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open peer book: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return book.Close() },
	})
	return book, nil
}

func newNetwork(lc fx.Lifecycle, opts options, logger telemetry.Logger, book *peerbolt.Store) *p2p.Network {
	cfg := p2p.Config{
		BindIP:              opts.IP,
		Port:                opts.Port,
		DiscoverySourcePort: opts.SourcePort,
		DiscoveryDedupeTTL:  opts.Dedupe,
		DialTimeout:         opts.DialTimeout,
		ReadTimeout:         opts.ReadTimeout,
		Logger:              logger,
		Debug:               opts.Debug,
	}
	if book != nil {
		cfg.Book = book
	}
	n := p2p.NewNetwork(cfg)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return n.Close() },
	})
	return n
}

func newChat(opts options, n *p2p.Network, c console, logger telemetry.Logger) *meshchat.App {
	chat := meshchat.New(meshchat.Config{Name: opts.Name, Color: opts.Color}, n, meshchat.NewStdPrinter(c.out), logger)
	chat.Bind()
	return chat
}

func registerNode(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	opts options,
	n *p2p.Network,
	chat *meshchat.App,
	book *peerbolt.Store,
	c console,
	logger telemetry.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := n.Serve(!opts.NoTCP, !opts.NoUDP); err != nil {
				cancel()
				return err
			}

			if opts.Connect != "" {
				host, portStr, err := net.SplitHostPort(opts.Connect)
				if err != nil {
					logger.Printf("bad -connect %q: %v", opts.Connect, err)
				} else if port, err := strconv.Atoi(portStr); err != nil {
					logger.Printf("bad -connect port %q: %v", portStr, err)
				} else if err := n.Connect(host, port); err != nil {
					logger.Printf("connect request to %s: %v", opts.Connect, err)
				}
			}
			sources := []bootstrap.PeerSource{bootstrap.ParseStatic(opts.Dial)}
			if book != nil && opts.Rejoin > 0 {
				sources = append(sources, bootstrap.BookSource{Book: book, Limit: opts.Rejoin})
			}
			go bootstrap.RunOnce(runCtx, n, bootstrap.Config{PerAddrTimeout: opts.DialTimeout}, sources...)

			go func() {
				if err := chat.Run(runCtx, c.in); err != nil {
					logger.Printf("chat: %v", err)
				}
				if runCtx.Err() == nil {
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// registerMetrics serves the network's registry when -metrics is set.
func registerMetrics(lc fx.Lifecycle, opts options, n *p2p.Network, logger telemetry.Logger) {
	if opts.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.Metrics().Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              opts.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", opts.MetricsAddr)
			if err != nil {
				return fmt.Errorf("metrics listen: %w", err)
			}
			logger.Printf("metrics on http://%s/metrics", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("metrics server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
