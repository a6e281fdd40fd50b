package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"bmidash/internal/messaging"
	"bmidash/pkg/contracts/events"
)

func newEventsCommand(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow selection-changed events from the message broker",
		Long: `Consumes the selection queue and prints one JSON object per event.
The broker settings come from the messaging section of the config, or
BMI_MESSAGING_URL, BMI_MESSAGING_EXCHANGE and BMI_MESSAGING_QUEUE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := messaging.Dial(root.cfg.Messaging, root.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			err = client.ConsumeSelectionChanged(ctx, func(ctx context.Context, evt events.SelectionChanged) error {
				if err := enc.Encode(evt); err != nil {
					return err
				}
				seen++
				if limit > 0 && seen >= limit {
					cancel()
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				root.logger.Info("stopped following events", slog.Int("received", seen))
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "exit after this many events (0 follows until interrupted)")
	return cmd
}
