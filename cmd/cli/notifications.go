package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sapliy/pm-portal/internal/dashboard"
	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/internal/recipients"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "List, review and send release notifications",
}

var listNotificationsCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("filter")
		filter, err := notification.ParseFilter(raw)
		if err != nil {
			return err
		}

		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.Load(cmd.Context()); err != nil {
			return actionError(err, "Failed to load notifications")
		}
		return dashboard.RenderFeed(cmd.OutOrStdout(), a.ctrl.Feed(), filter)
	},
}

var showNotificationCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"open"},
	Short:   "Open a notification, marking it read",
	Args:    cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, n *notification.Notification) error {
		return dashboard.RenderNotification(cmd.OutOrStdout(), n)
	}),
}

var acceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept an external notification",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		if _, err := a.ctrl.Accept(cmd.Context()); err != nil {
			return actionError(err, "Failed to accept notification")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Notification accepted")
		return nil
	}),
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject an external notification",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		reason, _ := cmd.Flags().GetString("reason")
		if _, err := a.ctrl.Reject(cmd.Context(), reason); err != nil {
			return actionError(err, "Failed to reject notification")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification rejected. Reason: %s\n", reason)
		return nil
	}),
}

var saveCmd = &cobra.Command{
	Use:   "save <id>",
	Short: "Replace the text of a notification, keeping its images",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		text, err := contentFlag(cmd)
		if err != nil {
			return err
		}
		doc, err := a.ctrl.Document()
		if err != nil {
			return err
		}
		doc.Text = text
		if _, err := a.ctrl.Save(cmd.Context(), doc.Encode()); err != nil {
			return actionError(err, "Failed to save notification")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Notification saved")
		return nil
	}),
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a notification as a draft or send it right away",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := contentFlag(cmd)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		jira, _ := cmd.Flags().GetString("jira")
		to, _ := cmd.Flags().GetInt64Slice("to")
		draft, _ := cmd.Flags().GetBool("draft")

		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.ctrl.Create(cmd.Context(), dashboard.CreateForm{
			Title:        title,
			Content:      text,
			JiraRef:      jira,
			RecipientIDs: to,
		}, draft)
		if err != nil {
			return actionError(err, "Failed to create notification")
		}
		if draft {
			fmt.Fprintf(cmd.OutOrStdout(), "Draft #%d saved\n", n.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Notification #%d sent to %d recipients\n", n.ID, len(n.SentTo))
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <id>",
	Short: "Send a notification directly to recipients",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		to, _ := cmd.Flags().GetInt64Slice("to")
		n, err := a.ctrl.Send(cmd.Context(), to)
		if err != nil {
			return actionError(err, "Failed to send notification")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification sent to %d recipients\n", len(n.SentTo))
		return nil
	}),
}

var sendBulkCmd = &cobra.Command{
	Use:   "send-bulk <id>",
	Short: "Send a notification to groups through applications",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		groupIDs, _ := cmd.Flags().GetInt64Slice("groups")
		appIDs, _ := cmd.Flags().GetInt64Slice("apps")
		previewOnly, _ := cmd.Flags().GetBool("preview")
		out := cmd.OutOrStdout()

		preview, err := a.ctrl.Preview(cmd.Context(), groupIDs, appIDs)
		if err != nil {
			return actionError(err, "Failed to load groups and applications")
		}
		if err := preview.Render(out); err != nil {
			return err
		}
		if previewOnly {
			return nil
		}

		res, err := a.ctrl.SendBulk(cmd.Context(), preview.GroupIDs(), preview.ApplicationIDs())
		if err != nil {
			return actionError(err, "Failed to send notification")
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, recipients.SummaryMessage(res))
		return nil
	}),
}

var trackingCmd = &cobra.Command{
	Use:   "tracking <id>",
	Short: "Show open tracking for a sent notification",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
		stats, err := a.ctrl.Tracking(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load tracking data")
		}
		return dashboard.RenderTracking(cmd.OutOrStdout(), stats)
	}),
}

// withOpen runs fn with the notification named by args[0] opened in the
// controller.
func withOpen(fn func(cmd *cobra.Command, a *app, n *notification.Notification) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.ctrl.Open(cmd.Context(), id)
		if err != nil {
			return actionError(err, "Failed to load notification")
		}
		return fn(cmd, a, n)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// contentFlag reads --content, or --content-file when given.
func contentFlag(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("content-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read content: %w", err)
		}
		return string(data), nil
	}
	text, _ := cmd.Flags().GetString("content")
	return text, nil
}

// actionError keeps local validation messages and replaces server failures
// with the server's message or fallback.
func actionError(err error, fallback string) error {
	var formErr *dashboard.FormErrors
	var warn dashboard.WarningError
	switch {
	case errors.As(err, &formErr), errors.As(err, &warn),
		errors.Is(err, dashboard.ErrReasonRequired), errors.Is(err, dashboard.ErrNoRecipients),
		errors.Is(err, notification.ErrNotReviewable), errors.Is(err, notification.ErrNotSendable):
		return err
	case errors.Is(err, errNotLoggedIn):
		return err
	}
	return errors.New(portal.Message(err, fallback))
}

func init() {
	listNotificationsCmd.Flags().String("filter", "all", "all, unread or read")

	rejectCmd.Flags().String("reason", "", "why the notification is rejected (required)")

	for _, c := range []*cobra.Command{saveCmd, createCmd} {
		c.Flags().String("content", "", "notification body (HTML)")
		c.Flags().String("content-file", "", "read the body from a file")
	}

	createCmd.Flags().String("title", "", "notification title")
	createCmd.Flags().String("jira", "", "Jira release notes reference")
	createCmd.Flags().Int64Slice("to", nil, "recipient ids")
	createCmd.Flags().Bool("draft", false, "save without sending")

	sendCmd.Flags().Int64Slice("to", nil, "recipient ids")

	sendBulkCmd.Flags().Int64Slice("groups", nil, "group ids")
	sendBulkCmd.Flags().Int64Slice("apps", nil, "application ids")
	sendBulkCmd.Flags().Bool("preview", false, "only show the audience")

	notificationsCmd.AddCommand(listNotificationsCmd, showNotificationCmd, acceptCmd, rejectCmd,
		saveCmd, createCmd, sendCmd, sendBulkCmd, trackingCmd)
	rootCmd.AddCommand(notificationsCmd)
}
