package dashboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sapliy/pm-portal/internal/notification"
)

func TestRenderTrackingEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTracking(&buf, &notification.TrackingStats{NotificationID: 1}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No tracking data available yet." {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestRenderTracking(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stats := &notification.TrackingStats{
		TotalSent:   4,
		TotalOpened: 3,
		OpenRate:    75,
		OpenedUsers: []notification.User{{Name: "Alice", Email: "alice@example.com", ApplicationName: "Web", OpenedAt: &at}},
		NotOpenedUsers: []notification.User{
			{Name: "Bilal", Email: "bilal@example.com"},
		},
		ByApplication: []notification.ApplicationStats{{ApplicationName: "Web", TotalSent: 4, Opened: 3, OpenRate: 75}},
		LastOpenedAt:  &at,
	}

	var buf bytes.Buffer
	if err := RenderTracking(&buf, stats); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Total Sent:   4", "75.0% (good)", "Alice <alice@example.com> via Web", "Not Opened (1)", "Bilal"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderFeed(t *testing.T) {
	feed := notification.NewFeed()
	feed.Replace([]*notification.Notification{
		{ID: 1, Title: "Unread one", Status: notification.StatusUnread},
		{ID: 2, Title: "Accepted one", Status: notification.StatusRead, Action: notification.ActionAccepted},
		{ID: 3, Title: "Draft", Status: notification.StatusRead, Source: notification.SourcePMCreated, CreatedBy: "Ana"},
	})

	var buf bytes.Buffer
	if err := RenderFeed(&buf, feed, notification.FilterRead); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "All (3)  Unread (1)  Read (2)") {
		t.Errorf("Missing counts in:\n%s", out)
	}
	if strings.Contains(out, "Unread one") {
		t.Error("Read filter should hide unread notifications")
	}
	if !strings.Contains(out, "Accepted") || !strings.Contains(out, "Created by Ana") {
		t.Errorf("Missing chips in:\n%s", out)
	}
}

func TestRenderNotification(t *testing.T) {
	n := &notification.Notification{
		ID:      7,
		Title:   "Release 2",
		Status:  notification.StatusRead,
		Content: "<p>Body</p>\n" + `<img src="data:image/png;base64,AAA" alt="chart" id="img-9" />`,
	}
	var buf bytes.Buffer
	if err := RenderNotification(&buf, n); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"#7 Release 2", "<p>Body</p>", "[img-9] chart", "Available: accept, reject"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "base64") {
		t.Error("Image data must not be printed")
	}
}

func TestRenderRecipientsGroupsAndUngrouped(t *testing.T) {
	beta := int64(1)
	groups := []notification.Group{{ID: 1, Name: "Beta"}, {ID: 2, Name: "Empty"}}
	recs := []notification.Recipient{
		{ID: 10, Name: "Alice", Email: "alice@example.com", GroupID: &beta},
		{ID: 11, Name: "Dana", Email: "dana@example.com"},
	}

	var buf bytes.Buffer
	if err := RenderRecipients(&buf, recs, groups); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "Beta (1)") || !strings.Contains(out, "Ungrouped (1)") {
		t.Errorf("Expected group and ungrouped sections, got:\n%s", out)
	}
	if strings.Contains(out, "Empty") {
		t.Error("Groups without members should not be listed")
	}
	if strings.Index(out, "Alice") > strings.Index(out, "Dana") {
		t.Error("Ungrouped recipients should come last")
	}
}

func TestRenderApplicationsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderApplications(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No applications registered" {
		t.Errorf("Unexpected output %q", buf.String())
	}
}
