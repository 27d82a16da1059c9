package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/mediaflow/pkg/media/live"
)

var liveSchedule string

var liveCmd = &cobra.Command{
	Use:   "live <source>",
	Short: "Follow a source's live stream",
	Long: `Follow a source's live stream until it ends or mediacat is interrupted.

The buffer is synced on the config's sync_schedule, or --sync, so slow feeds
reach the output without waiting for a full read.

Examples:
  mediacat live file:/var/log/encoder.log
  mediacat live ws://encoder.local/feed --sync "@every 2s"
  mediacat live -c mediacat.yaml camera`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, cleanup, err := state.open(args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		schedule := state.cfg.SyncSchedule
		if liveSchedule != "" {
			schedule = liveSchedule
		}

		return state.run(cmd.Context(), func(ctx context.Context) error {
			r, err := src.LiveStream()
			if err != nil {
				return err
			}

			if target, ok := r.Buffer().(live.Syncable); ok && schedule != "" {
				syncer := live.NewSyncer(live.SyncerConfig{Metrics: state.metrics, Logger: state.logger})
				if _, err := syncer.Add(schedule, args[0], target); err != nil {
					return err
				}
				syncer.Start()
				defer func() { <-syncer.Stop().Done() }()
			}

			n, err := io.Copy(cmd.OutOrStdout(), readerWithContext{ctx, r})
			state.logger.Debug("live stream ended", "source", args[0], "bytes", n)
			if err != nil {
				return fmt.Errorf("live %s: %w", args[0], err)
			}
			return nil
		})
	},
}

func init() {
	liveCmd.Flags().StringVar(&liveSchedule, "sync", "", "cron schedule overriding sync_schedule")
}
