package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KasunDA/fc-admin/internal/bridge"
	"github.com/KasunDA/fc-admin/internal/config"
	"github.com/KasunDA/fc-admin/internal/directory"
	"github.com/KasunDA/fc-admin/internal/frontend"
	"github.com/KasunDA/fc-admin/internal/logging"
	"github.com/KasunDA/fc-admin/internal/metrics"
	"github.com/KasunDA/fc-admin/internal/mock"
	"github.com/KasunDA/fc-admin/internal/profile"
	"github.com/KasunDA/fc-admin/internal/session"
	"github.com/KasunDA/fc-admin/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func runServer(cmd *cobra.Command, args []string) error {
	// Baseline logger for the config load itself
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "fc-admin",
	})
	defer logging.Shutdown()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logging.Init(logging.Config{
		Format:    cfg.Logging.Format,
		Level:     cfg.Logging.Level,
		Component: "fc-admin",
		FilePath:  cfg.Logging.File,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var br session.Bridge
	if mockMode {
		log.Info().Msg("Starting in mock mode")
		br = &mock.Bridge{}
	} else {
		remote := newRemoteBridge(cfg.Bridge)
		if m != nil {
			remote.OnFailure(m.BridgeFailure)
		}
		br = remote
	}

	lc := session.NewLifecycle(br, session.NewDeploys(), cfg.Session.Namespaces)
	events := make(chan session.Event, 256)
	lc.SetEvents(events)

	storage, validator, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	asm := profile.NewAssembler(lc.Deploys(), storage)
	asm.SetNotifier(lc)
	if validator != nil {
		asm.SetValidator(validator)
	}

	b := ws.NewBroadcaster(lc, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections)
	defer b.Stop()
	b.SetPrivacyFilter(cfg.Privacy.NewPrivacyFilter())

	server := ws.NewServer(lc, asm, b, cfg.PrimaryNamespace(), cfg.Server.AllowedOrigins)
	if m != nil {
		server.SetMetrics(m, cfg.Metrics.Path)
		b.OnClientCount(m.SetClients)
	}
	server.SetFrontend(cfg.Server.DataDir, frontend.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, cfg, func(old, new *config.Config) {
			logging.SetLevel(new.Logging.Level)
			lc.SetNamespaces(new.Session.Namespaces)
			server.SetPrimaryNamespace(new.PrimaryNamespace())
			b.SetPrivacyFilter(new.Privacy.NewPrivacyFilter())
		})
		if err != nil {
			log.Warn().Err(err).Msg("config watcher disabled")
		} else {
			watcher.Start()
			defer watcher.Stop()
			go reloadOnHangup(ctx, watcher)
		}
	}

	if m != nil {
		lc.Observe(m.Observe)
		lc.Observe(func(session.Event) {
			m.SetPendingDeploys(lc.Deploys().Len())
		})
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Consume(gctx, events)
		return nil
	})
	if mockMode {
		mock.NewGenerator(lc, cfg.PrimaryNamespace(), cfg.Mock.ChangeInterval).Start(gctx)
	}
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("version", Version).Msg("fc-admin listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if lc.State() == session.Active {
			if err := lc.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("stop session on shutdown")
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info().Msg("SIGHUP received, reloading config")
			w.Reload()
		}
	}
}

func newRemoteBridge(cfg config.BridgeConfig) *bridge.Remote {
	agent := bridge.NewAgentClient(cfg.AgentScheme, cfg.AgentPort)
	var tunnel bridge.Tunnel
	switch cfg.Mode {
	case "websockify":
		tunnel = bridge.NewWebsockify(cfg.WebsockifyPath, cfg.ListenHost, cfg.ListenPort, cfg.StopGrace)
	default:
		tunnel = bridge.NewProxy(net.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.ListenPort)))
	}
	return bridge.NewRemote(agent, tunnel, cfg.TargetPort, cfg.ProbeTimeout)
}

// openStorage returns the configured profile backend. The validator is nil
// unless the directory backend is asked to check members.
func openStorage(cfg *config.Config) (profile.Storage, profile.Validator, func() error, error) {
	if cfg.Profiles.Backend != "directory" {
		return profile.NewFileStore(cfg.Profiles.Dir), nil, func() error { return nil }, nil
	}
	store, err := directory.Open(cfg.Profiles.DirectoryDB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open directory: %w", err)
	}
	var v profile.Validator
	if cfg.Profiles.ValidateMembers {
		v = directory.NewValidator(store)
	}
	return directory.NewStorage(store), v, store.Close, nil
}
