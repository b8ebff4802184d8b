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

	"github.com/KasunDA/fc-admin/internal/agent"
	"github.com/KasunDA/fc-admin/internal/config"
	"github.com/KasunDA/fc-admin/internal/logging"
)

// Version information (set at build time with -ldflags)
var Version = "dev"

var (
	configPath string
	port       int
)

var rootCmd = &cobra.Command{
	Use:     "fc-session",
	Short:   "Fleet Commander session agent",
	Long:    `fc-session runs on a managed host and starts or stops the live desktop session the admin captures from`,
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "fc-admin.yaml", "Path to config file")
	rootCmd.Flags().IntVar(&port, "port", 0, "Override agent port")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Agent.Port = port
	}

	logging.Init(logging.Config{
		Format:    cfg.Logging.Format,
		Level:     cfg.Logging.Level,
		Component: "fc-session",
		FilePath:  cfg.Logging.File,
	})
	defer logging.Shutdown()

	manager := agent.NewManager(cfg.Agent)
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Agent.Host, strconv.Itoa(cfg.Agent.Port)),
		Handler:           agent.NewServer(manager).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("fc-session listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if manager.Running() {
			if err := manager.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("stop session on shutdown")
			}
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
