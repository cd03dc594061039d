package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sapliy/pm-portal/internal/mockapi"
	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
	"github.com/sapliy/pm-portal/pkg/observability"
)

func newBackend(t *testing.T) (*httptest.Server, *mockapi.Server, map[string]string) {
	t.Helper()
	srv, keys, err := mockapi.NewSeeded(&bcryptutil.BcryptUtilsImpl{Cost: bcrypt.MinCost}, "test-secret", nil)
	if err != nil {
		t.Fatalf("NewSeeded failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv, keys
}

func loggedIn(t *testing.T, ts *httptest.Server, opts ...ClientOption) *Client {
	t.Helper()
	c := NewClient(append([]ClientOption{WithBaseURL(ts.URL + "/api")}, opts...)...)
	if _, err := c.Auth.Login(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return c
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv(BaseURLEnv, "")
	if got := NewClient().BaseURL(); got != DefaultBaseURL {
		t.Errorf("Expected default base URL, got %s", got)
	}

	t.Setenv(BaseURLEnv, "https://portal.example.com/api/")
	if got := NewClient().BaseURL(); got != "https://portal.example.com/api" {
		t.Errorf("Expected env base URL without trailing slash, got %s", got)
	}
	if got := NewClient(WithBaseURL("http://override/api")).BaseURL(); got != "http://override/api" {
		t.Errorf("Expected option to win over env, got %s", got)
	}
}

func TestAuth(t *testing.T) {
	ts, _, _ := newBackend(t)
	ctx := context.Background()
	c := NewClient(WithBaseURL(ts.URL + "/api"))

	if _, err := c.Auth.Me(ctx); !IsUnauthorized(err) {
		t.Errorf("Expected 401 before login, got %v", err)
	}

	_, err := c.Auth.Login(ctx, mockapi.DemoEmail, "wrong")
	if got := Message(err, "Login failed"); got != "Invalid email or password" {
		t.Errorf("Expected server error message, got %q", got)
	}

	user, err := c.Auth.Login(ctx, mockapi.DemoEmail, mockapi.DemoPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.Email != mockapi.DemoEmail || user.Name != "Demo PM" {
		t.Errorf("Unexpected user %+v", user)
	}

	me, err := c.Auth.Me(ctx)
	if err != nil || me.ID != user.ID {
		t.Errorf("Me() = %+v, %v", me, err)
	}

	if err := c.Auth.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := c.Auth.Me(ctx); !IsUnauthorized(err) {
		t.Errorf("Expected 401 after logout, got %v", err)
	}
}

func TestCookiesRoundTrip(t *testing.T) {
	ts, _, _ := newBackend(t)
	c := loggedIn(t, ts)

	saved := c.Cookies()
	if len(saved) == 0 {
		t.Fatal("Expected a session cookie")
	}

	restored := NewClient(WithBaseURL(ts.URL + "/api"))
	restored.SetCookies(saved)
	if _, err := restored.Auth.Me(context.Background()); err != nil {
		t.Errorf("Restored session should be valid: %v", err)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	ts, _, _ := newBackend(t)
	ctx := context.Background()
	metrics := observability.NewMetrics()
	c := loggedIn(t, ts, WithMetrics(metrics))

	list, err := c.Notifications.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %d items, %v", len(list), err)
	}
	id := list[0].ID

	n, err := c.Notifications.Update(ctx, id, &notification.UpdateRequest{Status: notification.StatusRead})
	if err != nil || n.Status != notification.StatusRead {
		t.Fatalf("mark read: %+v, %v", n, err)
	}

	groups, _ := c.Groups.List(ctx)
	apps, _ := c.Applications.List(ctx)

	_, err = c.Notifications.SendBulk(ctx, id, []int64{groups[0].ID}, []int64{apps[0].ID})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 before accept, got %v", err)
	}

	n, err = c.Notifications.Update(ctx, id, &notification.UpdateRequest{Action: notification.ActionAccepted})
	if err != nil || !n.IsAccepted() || n.ActionDate == nil {
		t.Fatalf("accept: %+v, %v", n, err)
	}

	res, err := c.Notifications.SendBulk(ctx, id, []int64{groups[0].ID}, []int64{apps[0].ID})
	if err != nil {
		t.Fatalf("SendBulk failed: %v", err)
	}
	if res.Summary.TotalUsers != 2 || len(res.SentRelease.Users) != 2 {
		t.Errorf("Unexpected summary %+v", res.Summary)
	}

	got, err := c.Notifications.Get(ctx, id)
	if err != nil || got.Status != notification.StatusSent || got.SentVia == nil {
		t.Errorf("Get() after send = %+v, %v", got, err)
	}

	stats, err := c.Notifications.Tracking(ctx, id)
	if err != nil || stats.TotalSent != 2 || stats.TotalOpened != 0 {
		t.Errorf("Tracking() = %+v, %v", stats, err)
	}

	if _, err := c.Notifications.Get(ctx, 9999); Message(err, "fallback") != "Not found" {
		t.Errorf("Expected not found, got %v", err)
	}

	if n := testutil.ToFloat64(metrics.ClientRequests.WithLabelValues(http.MethodPut, "200")); n != 2 {
		t.Errorf("Expected 2 successful PUTs recorded, got %v", n)
	}
}

func TestCreateAndSend(t *testing.T) {
	ts, _, _ := newBackend(t)
	ctx := context.Background()
	c := loggedIn(t, ts)

	draft, err := c.Notifications.Create(ctx, &notification.CreateRequest{
		Title:   "Maintenance window",
		Content: "<p>Saturday 02:00 UTC</p>",
		Source:  notification.SourcePMCreated,
		IsDraft: true,
	})
	if err != nil {
		t.Fatalf("Create draft failed: %v", err)
	}
	if !draft.IsPMCreated() || draft.CreatedBy != "Demo PM" || draft.IsSent() {
		t.Errorf("Unexpected draft %+v", draft)
	}

	recs, _ := c.Recipients.List(ctx)
	sent, err := c.Notifications.Send(ctx, draft.ID, []int64{recs[0].ID})
	if err != nil || !sent.IsSent() || len(sent.SentTo) != 1 {
		t.Errorf("Send() = %+v, %v", sent, err)
	}

	_, err = c.Notifications.Create(ctx, &notification.CreateRequest{Title: "x", Content: "y", Source: notification.SourcePMCreated})
	if Message(err, "") != "Please select at least one recipient" {
		t.Errorf("Expected recipient error, got %v", err)
	}
}

func TestRecipientsAndGroups(t *testing.T) {
	ts, _, _ := newBackend(t)
	ctx := context.Background()
	c := loggedIn(t, ts)

	g, err := c.Groups.Create(ctx, &GroupRequest{Name: "Enterprise"})
	if err != nil || g.Color != DefaultGroupColor {
		t.Fatalf("Create group = %+v, %v", g, err)
	}

	r, err := c.Recipients.Create(ctx, &RecipientRequest{Name: "Eve", Email: "eve@example.com", Role: "Admin", GroupID: &g.ID})
	if err != nil {
		t.Fatalf("Create recipient failed: %v", err)
	}

	g2, err := c.Groups.Update(ctx, g.ID, &GroupRequest{Name: "Enterprise EU", Color: "#ff0000"})
	if err != nil || g2.Name != "Enterprise EU" || g2.UserCount != 1 {
		t.Errorf("Update group = %+v, %v", g2, err)
	}

	if err := c.Groups.Delete(ctx, g.ID); err != nil {
		t.Fatalf("Delete group failed: %v", err)
	}
	recs, _ := c.Recipients.List(ctx)
	for _, rec := range recs {
		if rec.ID == r.ID && rec.GroupID != nil {
			t.Errorf("Expected recipient to be ungrouped, got %v", *rec.GroupID)
		}
	}

	r.Name = "Eve Adams"
	upd, err := c.Recipients.Update(ctx, r.ID, &RecipientRequest{Name: r.Name, Email: r.Email, Role: r.Role})
	if err != nil || upd.Name != "Eve Adams" {
		t.Errorf("Update recipient = %+v, %v", upd, err)
	}
	if err := c.Recipients.Delete(ctx, r.ID); err != nil {
		t.Errorf("Delete recipient failed: %v", err)
	}
	if err := c.Recipients.Delete(ctx, r.ID); err == nil {
		t.Error("Expected second delete to fail")
	}
}

func TestUngroup(t *testing.T) {
	one, two := int64(1), int64(2)
	in := []notification.Recipient{{ID: 1, GroupID: &one}, {ID: 2, GroupID: &two}, {ID: 3}}
	out := Ungroup(in, 1)
	if out[0].GroupID != nil || out[1].GroupID == nil || *out[1].GroupID != 2 {
		t.Errorf("Unexpected result %+v", out)
	}
	if in[0].GroupID == nil {
		t.Error("Input must not be modified")
	}
}

func TestSuggest(t *testing.T) {
	ts, _, _ := newBackend(t)
	ctx := context.Background()
	c := loggedIn(t, ts)

	got, err := c.AI.Suggest(ctx, "<p>Old</p>", "  ")
	if err != nil || got != "" {
		t.Errorf("Blank prompt should be a no-op, got %q, %v", got, err)
	}

	got, err = c.AI.Suggest(ctx, "<p>Old</p>", "make it shorter")
	if err != nil || !strings.Contains(got, "make it shorter") {
		t.Errorf("Suggest() = %q, %v", got, err)
	}
}

func TestEventsStream(t *testing.T) {
	ts, srv, keys := newBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := loggedIn(t, ts)

	st, err := c.Events.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer st.Close()

	if _, ok := (<-st.Events()).(notification.Connected); !ok {
		t.Fatal("Expected connected event first")
	}
	snap, ok := (<-st.Events()).(notification.InitialSnapshot)
	if !ok || len(snap.Notifications) != 2 {
		t.Fatalf("Expected initial snapshot of 2, got %+v", snap)
	}

	n, err := srv.Store().Ingest(keys["Web Console"], notification.Notification{Title: "Release 5.0"})
	if err != nil {
		t.Fatal(err)
	}
	srv.Publish(n)

	select {
	case ev := <-st.Events():
		nn, ok := ev.(notification.NewNotification)
		if !ok || nn.Notification.Title != "Release 5.0" {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for pushed notification")
	}

	st.Close()
	if err := st.Err(); err != nil {
		t.Errorf("Caller close should not record an error, got %v", err)
	}
	if _, open := <-st.Events(); open {
		t.Error("Events channel should be closed")
	}
}

func TestEventsStreamServerClose(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": keep-alive\n\ndata: {\"type\":\"connected\"}\n\ndata: {\"type\":\"bogus\"}\n\n"))
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	st, err := c.Events.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var got []notification.Event
	for ev := range st.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Errorf("Expected only the connected event, got %d", len(got))
	}
	if !errors.Is(st.Err(), ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", st.Err())
	}
}

func TestEventsRequiresSession(t *testing.T) {
	ts, _, _ := newBackend(t)
	c := NewClient(WithBaseURL(ts.URL + "/api"))
	if _, err := c.Events.Subscribe(context.Background()); !IsUnauthorized(err) {
		t.Errorf("Expected 401, got %v", err)
	}
}
