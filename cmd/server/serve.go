package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/nexuscall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/nexuscall/internal/adapter/driven/media/pion"
	"github.com/Wyydra/nexuscall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/nexuscall/internal/adapter/driven/persistence/sqlite"
	handler "github.com/Wyydra/nexuscall/internal/adapter/driving/http"
	"github.com/Wyydra/nexuscall/internal/config"
	"github.com/Wyydra/nexuscall/internal/core/port"
	"github.com/Wyydra/nexuscall/internal/core/service"
	"github.com/Wyydra/nexuscall/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the call session server",
		Long: `Start the HTTP and WebSocket server.

Examples:
  nexuscall serve
  nexuscall serve -c nexuscall.yaml
  NEXUSCALL_SERVER_ADDR=:9000 nexuscall serve
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			closer, err := logger.Setup(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
			}
			return run(ctx, cfg, ln)
		},
	}
}

// run serves on ln until ctx is cancelled, then shuts everything down.
func run(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	history, closeStore, err := openHistory(ctx, cfg.Storage)
	if err != nil {
		ln.Close()
		return err
	}
	defer closeStore()

	peers, err := pion.NewConnector(pion.ConnectorConfig{
		ICEServers:    cfg.WebRTC.ICEServers,
		GatherTimeout: cfg.WebRTC.Gather(),
	})
	if err != nil {
		ln.Close()
		return err
	}

	hub := ws.NewHub()
	sessions := service.NewSessions(service.Dependencies{
		Devices: pion.NewDevices(pion.DeviceConfig{
			Audio:   cfg.Media.Audio,
			Video:   cfg.Media.Video,
			Display: cfg.Media.Display,
		}),
		Peers:   peers,
		Events:  hub,
		History: history,
	}, service.Config{
		ConnectDelay:       cfg.Call.Connect(),
		ClearDelay:         cfg.Call.Clear(),
		TickInterval:       cfg.Call.Tick(),
		SessionIdleTimeout: cfg.Call.SessionIdle(),
	})

	h := handler.NewHandler(sessions, history, hub, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting server")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Shutdown())
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		sessions.Close()
		hub.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}

func openHistory(ctx context.Context, cfg config.StorageConfig) (port.CallHistoryRepository, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewCallHistoryRepository(db), func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}, nil
	default:
		return memory.NewCallHistoryRepository(), func() {}, nil
	}
}
