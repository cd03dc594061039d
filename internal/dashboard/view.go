package dashboard

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sapliy/pm-portal/internal/content"
	"github.com/sapliy/pm-portal/internal/notification"
)

const timeLayout = "2006-01-02 15:04"

// RenderFeed writes the dashboard list with its filter tab counts.
func RenderFeed(w io.Writer, feed *notification.Feed, filter notification.Filter) error {
	counts := feed.Counts()
	fmt.Fprintf(w, "All (%d)  Unread (%d)  Read (%d)\n\n", counts.All, counts.Unread, counts.Read)

	items := feed.Filter(filter)
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No notifications found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tTITLE\tJIRA\tCREATED")
	for _, n := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, statusChip(n), n.SourceLabel(), n.Title, n.JiraReleaseNotes, n.CreatedAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

// statusChip shows the review action when there is one, else the status.
func statusChip(n *notification.Notification) string {
	if n.Action != "" && !n.IsSent() {
		return notification.StatusLabel(string(n.Action))
	}
	return notification.StatusLabel(string(n.Status))
}

// RenderNotification writes the editor view of one notification.
func RenderNotification(w io.Writer, n *notification.Notification) error {
	doc := content.Decode(n.Content)

	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", n.ID, n.Title)
	fmt.Fprintf(&b, "Status: %s  Source: %s\n", statusChip(n), n.SourceLabel())
	if n.JiraReleaseNotes != "" {
		fmt.Fprintf(&b, "Jira: %s\n", n.JiraReleaseNotes)
	}
	if n.ActionDate != nil {
		fmt.Fprintf(&b, "%s on %s\n", notification.StatusLabel(string(n.Action)), n.ActionDate.Local().Format(timeLayout))
	}
	if n.SentVia != nil {
		fmt.Fprintf(&b, "Sent to %d users via %s (groups: %s)\n",
			len(n.SentTo), joinRefs(n.SentVia.Applications), joinRefs(n.SentVia.Groups))
	} else if n.IsSent() {
		fmt.Fprintf(&b, "Sent to %d users\n", len(n.SentTo))
	}

	b.WriteString("\n")
	b.WriteString(doc.Text)
	b.WriteString("\n")
	if len(doc.Images) > 0 {
		fmt.Fprintf(&b, "\nImages (%d):\n", len(doc.Images))
		for _, img := range doc.Images {
			fmt.Fprintf(&b, "  [%s] %s\n", img.ID, img.Name)
		}
	}

	var actions []string
	if n.CanAccept() {
		actions = append(actions, "accept", "reject")
	}
	if n.CanSend() {
		actions = append(actions, "send-bulk")
	}
	if len(actions) > 0 {
		fmt.Fprintf(&b, "\nAvailable: %s\n", strings.Join(actions, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func joinRefs(refs []notification.Ref) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}

// RenderTracking writes the tracking panel. Stats are shown as received.
func RenderTracking(w io.Writer, s *notification.TrackingStats) error {
	if s == nil || s.TotalSent == 0 {
		_, err := fmt.Fprintln(w, "No tracking data available yet.")
		return err
	}

	var b strings.Builder
	b.WriteString("Tracking Statistics\n")
	fmt.Fprintf(&b, "  Total Sent:   %d\n", s.TotalSent)
	fmt.Fprintf(&b, "  Total Opened: %d\n", s.TotalOpened)
	fmt.Fprintf(&b, "  Open Rate:    %.1f%% (%s)\n", s.OpenRate, notification.LevelForOpenRate(s.OpenRate))
	if s.LastOpenedAt != nil {
		fmt.Fprintf(&b, "  Last Opened:  %s\n", formatTime(*s.LastOpenedAt))
	}

	if len(s.ByApplication) > 0 {
		b.WriteString("\nBy Application\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  APPLICATION\tSENT\tOPENED\tRATE")
		for _, a := range s.ByApplication {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%.1f%%\n", a.ApplicationName, a.TotalSent, a.Opened, a.OpenRate)
		}
		tw.Flush()
	}

	fmt.Fprintf(&b, "\nOpened (%d)\n", len(s.OpenedUsers))
	for _, u := range s.OpenedUsers {
		fmt.Fprintf(&b, "  %s <%s>", u.Name, u.Email)
		if u.ApplicationName != "" {
			fmt.Fprintf(&b, " via %s", u.ApplicationName)
		}
		if u.OpenedAt != nil {
			fmt.Fprintf(&b, " at %s", formatTime(*u.OpenedAt))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nNot Opened (%d)\n", len(s.NotOpenedUsers))
	for _, u := range s.NotOpenedUsers {
		fmt.Fprintf(&b, "  %s <%s>\n", u.Name, u.Email)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

// RenderRecipients lists recipients under their group, with an Ungrouped
// bucket last.
func RenderRecipients(w io.Writer, recipients []notification.Recipient, groups []notification.Group) error {
	if len(recipients) == 0 {
		_, err := fmt.Fprintln(w, "No recipients yet")
		return err
	}

	byGroup := make(map[int64][]notification.Recipient)
	var ungrouped []notification.Recipient
	for _, r := range recipients {
		if r.GroupID == nil {
			ungrouped = append(ungrouped, r)
			continue
		}
		byGroup[*r.GroupID] = append(byGroup[*r.GroupID], r)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	section := func(name string, members []notification.Recipient) {
		fmt.Fprintf(tw, "%s (%d)\t\t\t\n", name, len(members))
		for _, r := range members {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", r.ID, r.Name, r.Email, r.Role)
		}
	}
	for _, g := range groups {
		if members := byGroup[g.ID]; len(members) > 0 {
			section(g.Name, members)
		}
	}
	if len(ungrouped) > 0 {
		section("Ungrouped", ungrouped)
	}
	return tw.Flush()
}

func RenderGroups(w io.Writer, groups []notification.Group) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, "No groups yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSERS\tCOLOR\tAPPLICATIONS\tDESCRIPTION")
	for _, g := range groups {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", g.ID, g.Name, g.UserCount, g.Color, joinRefs(g.Applications), g.Description)
	}
	return tw.Flush()
}

// RenderApplications shows applications with their keys as served, which
// the backend masks.
func RenderApplications(w io.Writer, apps []notification.Application) error {
	if len(apps) == 0 {
		_, err := fmt.Fprintln(w, "No applications registered")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUSERS\tENDPOINT\tAPI KEY")
	for _, a := range apps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s%s\t%s\n", a.ID, a.Name, a.Status, a.ActiveUsers, a.BaseURL, a.NotificationEndpoint, a.APIKey)
	}
	return tw.Flush()
}
