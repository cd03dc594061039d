package recipients

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sapliy/pm-portal/internal/notification"
)

func testGroups() []notification.Group {
	return []notification.Group{
		{ID: 1, Name: "Beta testers", UserCount: 2, Users: []notification.User{
			{UserID: 10, Name: "A", Email: "a@example.com"},
			{UserID: 11, Name: "B", Email: "b@example.com"},
		}},
		{ID: 2, Name: "Enterprise", UserCount: 2, Users: []notification.User{
			{UserID: 11, Name: "B (enterprise)", Email: "b@corp.example.com"},
			{UserID: 12, Name: "C", Email: "c@example.com"},
		}},
		{ID: 3, Name: "Empty", UserCount: 0},
	}
}

func testApps() []notification.Application {
	return []notification.Application{
		{ID: 1, Name: "Web", Status: "active"},
		{ID: 2, Name: "Mobile", Status: "active"},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		groupIDs     []int64
		appIDs       []int64
		wantUsers    int
		wantWarnings []Warning
		wantReady    bool
		wantEmpty    bool
	}{
		{
			name:      "overlapping groups are deduplicated",
			groupIDs:  []int64{1, 2},
			appIDs:    []int64{2},
			wantUsers: 3,
			wantReady: true,
		},
		{
			name:         "no group selected",
			appIDs:       []int64{1},
			wantUsers:    0,
			wantWarnings: []Warning{WarningNoGroups},
		},
		{
			name:         "no application selected still counts users",
			groupIDs:     []int64{1},
			wantUsers:    2,
			wantWarnings: []Warning{WarningNoApplications},
		},
		{
			name:         "nothing selected",
			wantWarnings: []Warning{WarningNoGroups, WarningNoApplications},
			wantEmpty:    true,
		},
		{
			name:      "group without users",
			groupIDs:  []int64{3},
			appIDs:    []int64{1},
			wantUsers: 0,
			wantReady: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(testGroups(), tt.groupIDs, testApps(), tt.appIDs)

			if p.TotalUsers != tt.wantUsers {
				t.Errorf("TotalUsers = %d, want %d", p.TotalUsers, tt.wantUsers)
			}
			if len(p.Warnings) != len(tt.wantWarnings) {
				t.Fatalf("Warnings = %v, want %v", p.Warnings, tt.wantWarnings)
			}
			for _, w := range tt.wantWarnings {
				if !p.HasWarning(w) {
					t.Errorf("missing warning %q", w)
				}
			}
			if p.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", p.Ready(), tt.wantReady)
			}
			if p.Empty() != tt.wantEmpty {
				t.Errorf("Empty() = %v, want %v", p.Empty(), tt.wantEmpty)
			}
		})
	}
}

func TestAudienceLastWriteWins(t *testing.T) {
	users := Audience(testGroups()[:2])
	if len(users) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(users))
	}
	if users[1].UserID != 11 || users[1].Email != "b@corp.example.com" {
		t.Errorf("Expected later group to win for user 11, got %+v", users[1])
	}
}

func TestRenderWarnsButListsApplications(t *testing.T) {
	p := Resolve(testGroups(), nil, testApps(), []int64{2})

	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Mobile") {
		t.Errorf("Expected application list in preview, got:\n%s", out)
	}
	if !strings.Contains(out, string(WarningNoGroups)) {
		t.Errorf("Expected group warning in preview, got:\n%s", out)
	}
	if !strings.Contains(out, "Total Users: 0") {
		t.Errorf("Expected total users line, got:\n%s", out)
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Resolve(testGroups(), nil, testApps(), nil).Render(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Select groups and applications") {
		t.Errorf("Unexpected empty preview: %q", buf.String())
	}
}

func TestPreviewIDs(t *testing.T) {
	p := Resolve(testGroups(), []int64{2, 1}, testApps(), []int64{1})
	if got := p.GroupIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("GroupIDs() = %v", got)
	}
	if got := p.ApplicationIDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("ApplicationIDs() = %v", got)
	}
}

func TestToggle(t *testing.T) {
	ids := Toggle(nil, 3)
	ids = Toggle(ids, 5)
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %v", ids)
	}
	ids = Toggle(ids, 3)
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("Expected [5], got %v", ids)
	}
}

func TestSummaryMessage(t *testing.T) {
	msg := SummaryMessage(&notification.BulkSendResult{
		Message: "Notification sent",
		Summary: notification.BulkSendSummary{
			TotalUsers:             3,
			SuccessfulApplications: 1,
			TotalApplications:      2,
			Groups:                 []notification.Ref{{ID: 1, Name: "Beta"}, {ID: 2, Name: "Enterprise"}},
		},
	})
	for _, want := range []string{"Total Users: 3", "1/2 successful", "Beta, Enterprise"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in %q", want, msg)
		}
	}
}
