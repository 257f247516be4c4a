// Command sserelay serves Redis pub/sub channels as Server-Sent Events.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mroth/sserelay"
	"github.com/mroth/sserelay/admin"
	"github.com/mroth/sserelay/internal/config"
	"github.com/mroth/sserelay/internal/logging"
)

const longDesc string = `sserelay relays Redis pub/sub channels to browsers as Server-Sent Events.

Clients connect to /subscribe/<channel>, or to any path configured under
routes, and receive every message published on the channel as a data event.

Settings come from the --config YAML file, then SSERELAY_* environment
variables, then flags. Routes are reloaded when the config file changes.`

type relayCommander struct {
	configPath string
	listen     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	cmder := &relayCommander{}
	cmd := &cobra.Command{
		Use:           "sserelay",
		Short:         "Redis pub/sub to Server-Sent Events relay",
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides config)")
	cmd.Flags().StringVar(&cmder.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	return cmd
}

func (c *relayCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Listen = c.listen
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	relay, err := sserelay.NewServer(append(cfg.ServerOptions(), sserelay.WithLogger(log))...)
	if err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	defer relay.Shutdown()

	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, config.DefaultDebounce, func(next *config.Config) {
			if err := relay.SetRoutes(next.RouteMap()); err != nil {
				log.Error().Err(err).Msg("routes not updated")
			}
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("configuration changes will not be picked up")
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/admin/", admin.AdminHandler(relay))
	mux.Handle("/metrics", relay.MetricsHandler())
	mux.Handle("/healthz", relay.HealthHandler())
	mux.Handle("/", relay)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Listen).
			Str("upstream", cfg.Upstream).
			Int("workers", cfg.Workers).
			Int("routes", len(cfg.Routes)).
			Msg("sserelay started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked event streams are not tracked by the http server, the relay
	// closes them itself
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	relay.Shutdown()
	log.Info().Msg("shutdown complete")
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Error().Err(err).Msg("sserelay")
		os.Exit(1)
	}
}
