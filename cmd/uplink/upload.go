package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/trackshift/platform/uplink/internal/history"
	"github.com/trackshift/platform/uplink/internal/provision"
	"github.com/trackshift/platform/uplink/internal/uploader"
)

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "upload a scene (.json marker) or a video (.mp4) to the host",
		Example: `  uplink upload Scenes/forest/forest.json
  uplink upload --config uplink.yaml clips/demo.mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := provision.Dial(cfg.RPC.Address)
			if err != nil {
				return err
			}
			defer client.Close()

			var housekeeper uploader.Housekeeper
			if cfg.Client.Root != "" {
				housekeeper = uploader.LocalHousekeeper{Root: cfg.Client.Root, Logger: log.Logger}
			}
			u := uploader.New(uploader.Config{
				Provisioner:       client,
				Housekeeper:       housekeeper,
				CleanBeforeUpload: cfg.Client.CleanBeforeUpload,
				OnProgress: func(f float64) {
					log.Info().Str("progress", fmt.Sprintf("%.0f%%", f*100)).Msg("uploading")
				},
				ProgressInterval: time.Second,
				Logger:           log.Logger,
			})

			out := u.Upload(cmd.Context(), args[0])
			if !out.Success() {
				return fmt.Errorf("upload %s: %w", args[0], out.Err)
			}
			fmt.Printf("✓ %s %s uploaded to %s (%d files, %d bytes)\n", out.Kind, out.Name, out.Path, out.Files, out.Bytes)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "history <target>",
		Short: "list recent uploads of a target from the history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return fmt.Errorf("postgres_dsn is not configured")
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rec, err := history.NewPostgresRecorder(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer rec.Close()
			entries, err := rec.Recent(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-5s  %-7s  files=%d  %s", e.FinishedAt.Format(time.RFC3339), e.Kind, e.Outcome, e.Files, e.TokenID)
				if e.Error != "" {
					line += "  " + e.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	c.Flags().Int("limit", 20, "maximum number of entries")
	return c
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show upload counters of a running host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := provision.Dial(cfg.RPC.Address)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			s, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("active=%d successes=%d failures=%d timeouts=%d success_rate=%.2f p95_ms=%.0f\n",
				s.Active, s.Successes, s.Failures, s.Timeouts, s.SuccessRate, s.P95Millis)
			return nil
		},
	}
}
