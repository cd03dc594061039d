package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/sapliy/pm-portal/internal/mockapi"
	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
	"github.com/sapliy/pm-portal/pkg/observability"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

type fakePublisher struct {
	mu       sync.Mutex
	keys     []string
	queues   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, keyOrQueue string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, keyOrQueue)
	p.queues = append(p.queues, keyOrQueue)
	p.payloads = append(p.payloads, value)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

type fakeMailer struct {
	to, subject, html string
	sent              int
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	m.to, m.subject, m.html = to, subject, html
	m.sent++
	return nil
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestHandleForwardsOnce(t *testing.T) {
	rdb, mr := setupRedis(t)
	kafka := &fakePublisher{}
	rabbit := &fakePublisher{}
	metrics := observability.NewMetrics()

	r := New(nil, []Sink{NewKafkaSink(kafka), NewQueueSink(rabbit, "release-notes")},
		WithRedis(rdb), WithMetrics(metrics))

	n := &notification.Notification{ID: 42, Title: "Release 7", JiraReleaseNotes: "PORT-7"}
	ctx := context.Background()

	if err := r.Handle(ctx, n); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := r.Handle(ctx, n); err != nil {
		t.Fatalf("second Handle failed: %v", err)
	}

	if kafka.count() != 1 || rabbit.count() != 1 {
		t.Fatalf("Expected one message per sink, got kafka=%d rabbit=%d", kafka.count(), rabbit.count())
	}
	if kafka.keys[0] != "42" || rabbit.queues[0] != "release-notes" {
		t.Errorf("Unexpected routing: key=%s queue=%s", kafka.keys[0], rabbit.queues[0])
	}

	var msg Message
	if err := json.Unmarshal(kafka.payloads[0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg.NotificationID != 42 || msg.Source != notification.SourceExternal || msg.ID == "" {
		t.Errorf("Unexpected message %+v", msg)
	}

	if ttl := mr.TTL("portal:relayed:42"); ttl != 24*time.Hour {
		t.Errorf("Expected 24h dedup TTL, got %v", ttl)
	}
	if got := testutil.ToFloat64(metrics.RelayDuplicates); got != 1 {
		t.Errorf("Expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.RelayForwarded.WithLabelValues("kafka", "ok")); got != 1 {
		t.Errorf("Expected 1 kafka ok, got %v", got)
	}
}

func TestHandleFailureIsNotMarked(t *testing.T) {
	rdb, mr := setupRedis(t)
	failing := &fakePublisher{err: errors.New("broker down")}
	ok := &fakePublisher{}

	r := New(nil, []Sink{NewQueueSink(failing, "q"), NewKafkaSink(ok)}, WithRedis(rdb))
	err := r.Handle(context.Background(), &notification.Notification{ID: 5})
	if err == nil || !strings.Contains(err.Error(), "rabbitmq: broker down") {
		t.Fatalf("Expected sink error, got %v", err)
	}
	if ok.count() != 1 {
		t.Error("Healthy sinks must still receive the message")
	}
	if mr.Exists("portal:relayed:5") {
		t.Error("A failed relay must not be marked as done")
	}
}

func TestHandleWithoutRedis(t *testing.T) {
	p := &fakePublisher{}
	r := New(nil, []Sink{NewKafkaSink(p)})
	n := &notification.Notification{ID: 1}
	_ = r.Handle(context.Background(), n)
	_ = r.Handle(context.Background(), n)
	if p.count() != 2 {
		t.Errorf("Without redis every push is forwarded, got %d", p.count())
	}
}

func TestEmailSink(t *testing.T) {
	m := &fakeMailer{}
	sink := NewEmailSink(m, "pm@example.com", "http://localhost:5173")
	n := &notification.Notification{
		ID:               9,
		Title:            "Release 9",
		JiraReleaseNotes: "PORT-9",
		Content:          "<p>New <b>export</b></p>\n" + `<img src="data:image/png;base64,AAA" alt="a" id="x" />`,
	}

	if err := sink.Forward(context.Background(), NewMessage(n, time.Now())); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if m.to != "pm@example.com" || m.subject != "New release notes: Release 9 (PORT-9)" {
		t.Errorf("Unexpected envelope to=%s subject=%s", m.to, m.subject)
	}
	for _, want := range []string{"<p>New <b>export</b></p>", "http://localhost:5173/editor/9", "1 image(s)", "External"} {
		if !strings.Contains(m.html, want) {
			t.Errorf("Expected %q in mail body", want)
		}
	}
	if strings.Contains(m.html, "base64") {
		t.Error("Images must not be inlined in the mail")
	}
}

func TestRunForwardsPushedNotifications(t *testing.T) {
	srv, keys, err := mockapi.NewSeeded(&bcryptutil.BcryptUtilsImpl{Cost: bcrypt.MinCost}, "test-secret", nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := portal.NewClient(portal.WithBaseURL(ts.URL + "/api"))
	if _, err := client.Auth.Login(ctx, mockapi.DemoEmail, mockapi.DemoPassword); err != nil {
		t.Fatal(err)
	}

	p := &fakePublisher{}
	r := New(client, []Sink{NewKafkaSink(p)})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for srv.Subscribers() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	n, err := srv.Store().Ingest(keys["Web Console"], notification.Notification{Title: "Pushed"})
	if err != nil {
		t.Fatal(err)
	}
	srv.Publish(n)

	for p.count() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for relay")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if p.count() != 1 {
		t.Errorf("Snapshot must not be relayed, got %d messages", p.count())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run should stop cleanly on cancel, got %v", err)
	}
}
