package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/trackshift/platform/uplink/internal/config"
	"github.com/trackshift/platform/uplink/internal/connectors"
	"github.com/trackshift/platform/uplink/internal/dlp"
	"github.com/trackshift/platform/uplink/internal/history"
	"github.com/trackshift/platform/uplink/internal/metrics"
	"github.com/trackshift/platform/uplink/internal/provision"
	"github.com/trackshift/platform/uplink/internal/uploadsvc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const shutdownGrace = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the provisioning server on the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	root, err := filepath.Abs(cfg.Upload.Root)
	if err != nil {
		return fmt.Errorf("resolve upload root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create upload root: %w", err)
	}

	hist, closeHistory, err := openHistory(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer closeHistory()

	connectorSet := connectors.Load(ctx, cfg.Connectors, cfg.ConnectorSettings, log.Logger)
	if len(connectorSet) > 0 {
		log.Info().Int("count", len(connectorSet)).Msg("external connectors enabled")
	}

	srv := provision.NewServer(provision.ServerConfig{
		Registry: uploadsvc.NewRegistry(),
		Uploads: uploadsvc.Config{
			Root:          root,
			BindHost:      cfg.Upload.BindHost,
			AdvertiseHost: cfg.Upload.AdvertiseHost,
			AuthTimeout:   cfg.Upload.AuthTimeout,
			MaxMemory:     cfg.Upload.MaxMemory,
			Scanner:       dlp.NewRuleScannerFromEnv(),
		},
		Connectors:      connectorSet,
		ConnectorStrict: cfg.ConnectorStrict,
		History:         hist,
		Metrics:         &metrics.Recorder{},
		Logger:          log.Logger,
	})

	lis, err := net.Listen("tcp", cfg.RPC.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPC.Bind, err)
	}
	grpcServer := grpc.NewServer()
	provision.RegisterProvisionerServer(grpcServer, srv)
	reflection.Register(grpcServer)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()
	log.Info().Str("addr", cfg.RPC.Bind).Str("root", root).Msg("uplink provisioning listening")

	select {
	case err := <-serveErr:
		return fmt.Errorf("grpc server exited: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openHistory(ctx context.Context, dsn string) (history.Recorder, func(), error) {
	if dsn == "" {
		return history.Nop{}, func() {}, nil
	}
	rec, err := history.NewPostgresRecorder(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("upload history enabled")
	return rec, rec.Close, nil
}
