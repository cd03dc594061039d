package mockapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server, map[string]string) {
	t.Helper()
	srv, keys, err := NewSeeded(&bcryptutil.BcryptUtilsImpl{Cost: bcrypt.MinCost}, "test-secret", nil)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv, keys
}

func loggedInClient(t *testing.T, ts *httptest.Server) *http.Client {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Jar: jar}
	resp, err := hc.Post(ts.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"email":"pm@example.com","password":"portal-demo"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed with status %d", resp.StatusCode)
	}
	return hc
}

func TestAuthFlow(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{"Valid Credentials", `{"email":"pm@example.com","password":"portal-demo"}`, http.StatusOK, `"user":{"id":1`},
		{"Wrong Password", `{"email":"pm@example.com","password":"nope"}`, http.StatusUnauthorized, "Invalid email or password"},
		{"Unknown User", `{"email":"x@example.com","password":"portal-demo"}`, http.StatusUnauthorized, "Invalid email or password"},
		{"Malformed", `{`, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			var b strings.Builder
			_, _ = bufio.NewReader(resp.Body).WriteTo(&b)

			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}
			if !strings.Contains(b.String(), tt.expectedBody) {
				t.Errorf("Expected body to contain '%s', got '%s'", tt.expectedBody, b.String())
			}
		})
	}

	resp, err := http.Get(ts.URL + "/api/auth/me")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a session, got %d", resp.StatusCode)
	}

	hc := loggedInClient(t, ts)
	resp, err = hc.Get(ts.URL + "/api/auth/me")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with a session, got %d", resp.StatusCode)
	}

	resp, _ = hc.Post(ts.URL+"/api/auth/logout", "application/json", nil)
	resp.Body.Close()
	resp, _ = hc.Get(ts.URL + "/api/auth/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestStoreLifecycle(t *testing.T) {
	_, srv, _ := newTestServer(t)
	store := srv.Store()

	n := store.Notifications()[0]
	if n.Status != notification.StatusUnread || n.Source != notification.SourceExternal {
		t.Fatalf("Unexpected seeded notification: %+v", n)
	}

	if _, err := store.SendBulk(n.ID, []int64{4}, []int64{1}); err == nil {
		t.Error("Expected unaccepted notification to be refused")
	}

	if _, err := store.Update(n.ID, notification.UpdateRequest{Action: notification.ActionAccepted}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, err := store.Update(n.ID, notification.UpdateRequest{Action: notification.ActionRejected}); err == nil {
		t.Error("Expected second review action to be refused")
	}

	groups := store.Groups()
	apps := store.Applications()
	res, err := store.SendBulk(n.ID, []int64{groups[0].ID, groups[1].ID}, []int64{apps[0].ID, apps[2].ID})
	if err != nil {
		t.Fatalf("SendBulk failed: %v", err)
	}
	if res.Summary.TotalUsers != 3 {
		t.Errorf("Expected 3 users, got %d", res.Summary.TotalUsers)
	}
	if res.Summary.SuccessfulApplications != 1 || res.Summary.TotalApplications != 2 {
		t.Errorf("Expected 1/2 successful applications, got %d/%d",
			res.Summary.SuccessfulApplications, res.Summary.TotalApplications)
	}

	if _, err := store.SendBulk(n.ID, nil, []int64{apps[0].ID}); err != ErrNoGroups {
		t.Errorf("Expected ErrNoGroups, got %v", err)
	}
	if _, err := store.SendBulk(n.ID, []int64{groups[0].ID}, nil); err != ErrNoApplications {
		t.Errorf("Expected ErrNoApplications, got %v", err)
	}
}

func TestTracking(t *testing.T) {
	_, srv, _ := newTestServer(t)
	store := srv.Store()

	recs := store.Recipients()
	alice, bilal := recs[0].ID, recs[1].ID
	web := store.Applications()[0].ID

	n, err := store.Create("Demo PM", notification.CreateRequest{Title: "Hello", Content: "x", RecipientIDs: []int64{alice, bilal}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n.Status != notification.StatusSent || len(n.SentTo) != 2 {
		t.Fatalf("Expected immediate delivery, got %+v", n)
	}

	if err := store.RecordOpen(n.ID, alice, web); err != nil {
		t.Fatalf("RecordOpen failed: %v", err)
	}
	if err := store.RecordOpen(n.ID, alice, web); err != nil {
		t.Fatalf("repeated RecordOpen failed: %v", err)
	}
	if err := store.RecordOpen(n.ID, 999, web); err == nil {
		t.Error("Expected open from a non-recipient to fail")
	}

	stats, err := store.Tracking(n.ID)
	if err != nil {
		t.Fatalf("Tracking failed: %v", err)
	}
	if stats.TotalSent != 2 || stats.TotalOpened != 1 || stats.OpenRate != 50 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if len(stats.NotOpenedUsers) != 1 || stats.NotOpenedUsers[0].UserID != bilal {
		t.Errorf("Unexpected not-opened users: %+v", stats.NotOpenedUsers)
	}
	if stats.OpenedUsers[0].ApplicationName != "Web Console" || stats.LastOpenedAt == nil {
		t.Errorf("Unexpected opened user: %+v", stats.OpenedUsers[0])
	}
}

func TestDeleteGroupUngroupsMembers(t *testing.T) {
	_, srv, _ := newTestServer(t)
	store := srv.Store()

	beta := store.Groups()[0]
	if err := store.DeleteGroup(beta.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	for _, r := range store.Recipients() {
		if r.GroupID != nil && *r.GroupID == beta.ID {
			t.Errorf("Recipient %d still in deleted group", r.ID)
		}
	}
	if err := store.DeleteGroup(beta.ID); err == nil {
		t.Error("Expected second delete to fail")
	}
}

func TestIngestAndEvents(t *testing.T) {
	ts, srv, keys := newTestServer(t)
	hc := loggedInClient(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() notification.Event {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			ev, err := notification.ParseEvent([]byte(strings.TrimPrefix(line, "data: ")))
			if err != nil {
				t.Fatalf("ParseEvent failed: %v", err)
			}
			return ev
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return nil
	}

	if _, ok := next().(notification.Connected); !ok {
		t.Fatal("Expected connected first")
	}
	snap, ok := next().(notification.InitialSnapshot)
	if !ok || len(snap.Notifications) != 2 {
		t.Fatalf("Expected initial snapshot of 2, got %+v", snap)
	}

	for srv.Subscribers() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	body := `{"title":"Release 4.3","content":"<p>Dark mode</p>"}`
	bad, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/ingest", strings.NewReader(body))
	bad.Header.Set(APIKeyHeader, "pk_app_bogus")
	badResp, err := http.DefaultClient.Do(bad)
	if err != nil {
		t.Fatal(err)
	}
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a bad key, got %d", badResp.StatusCode)
	}

	good, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/ingest", strings.NewReader(body))
	good.Header.Set(APIKeyHeader, keys["Mobile"])
	goodResp, err := http.DefaultClient.Do(good)
	if err != nil {
		t.Fatal(err)
	}
	var created notification.Notification
	_ = json.NewDecoder(goodResp.Body).Decode(&created)
	goodResp.Body.Close()
	if goodResp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", goodResp.StatusCode)
	}

	pushed, ok := next().(notification.NewNotification)
	if !ok || pushed.Notification.ID != created.ID || pushed.Notification.Title != "Release 4.3" {
		t.Errorf("Unexpected pushed event: %+v", pushed)
	}
}

func TestApplicationsMaskKeys(t *testing.T) {
	_, srv, keys := newTestServer(t)
	for _, app := range srv.Store().Applications() {
		if app.APIKey == keys[app.Name] || !strings.Contains(app.APIKey, "********") {
			t.Errorf("Key of %s is not masked: %s", app.Name, app.APIKey)
		}
	}
}
