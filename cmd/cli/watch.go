package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sapliy/pm-portal/internal/dashboard"
	"github.com/sapliy/pm-portal/internal/notification"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the dashboard and follow new notifications as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := authedApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if err := a.ctrl.Load(ctx); err != nil {
			return actionError(err, "Failed to load notifications")
		}
		if err := dashboard.RenderFeed(out, a.ctrl.Feed(), notification.FilterAll); err != nil {
			return err
		}

		feed := a.ctrl.Feed()
		a.ctrl.Subscribe(func(ch dashboard.Change) {
			if ch.Kind != dashboard.ChangeFeed {
				return
			}
			if ch.NotificationID == 0 {
				c := feed.Counts()
				fmt.Fprintf(out, "Feed refreshed: %d notifications, %d unread\n", c.All, c.Unread)
				return
			}
			if n, ok := feed.Get(ch.NotificationID); ok {
				fmt.Fprintf(out, "New notification #%d: %s (%s)\n", n.ID, n.Title, n.SourceLabel())
			}
		})

		fmt.Fprintln(out, "\nWatching for new notifications, press Ctrl+C to stop")
		err = a.ctrl.Watch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event stream closed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
