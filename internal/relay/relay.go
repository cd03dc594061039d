// Package relay forwards notifications pushed over the portal's event
// stream to downstream sinks, each notification at most once per day.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/observability"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

const dedupTTL = 24 * time.Hour

// Message is the payload written to every sink.
type Message struct {
	ID             string                     `json:"id"`
	NotificationID int64                      `json:"notificationId"`
	Title          string                     `json:"title"`
	Source         notification.Source        `json:"source"`
	JiraReference  string                     `json:"jiraReleaseNotes,omitempty"`
	RelayedAt      time.Time                  `json:"relayedAt"`
	Notification   *notification.Notification `json:"notification"`
}

func NewMessage(n *notification.Notification, now time.Time) *Message {
	return &Message{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		Title:          n.Title,
		Source:         n.EffectiveSource(),
		JiraReference:  n.JiraReleaseNotes,
		RelayedAt:      now.UTC(),
		Notification:   n,
	}
}

// Sink is one downstream destination.
type Sink interface {
	Name() string
	Forward(ctx context.Context, msg *Message) error
}

// Relay consumes the event stream and fans each new notification out to
// its sinks.
type Relay struct {
	client  *portal.Client
	sinks   []Sink
	redis   *redis.Client
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

type Option func(*Relay)

// WithRedis enables de-duplication across restarts.
func WithRedis(rdb *redis.Client) Option {
	return func(r *Relay) { r.redis = rdb }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithLogger(l *observability.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

func New(client *portal.Client, sinks []Sink, opts ...Option) *Relay {
	r := &Relay{
		client: client,
		sinks:  sinks,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards pushed notifications until ctx is cancelled or the stream
// ends. The initial snapshot is not forwarded; it only holds notifications
// the dashboards already know about.
func (r *Relay) Run(ctx context.Context) error {
	st, err := r.client.Events.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer st.Close()

	r.logger.Info("Relay started", "sinks", len(r.sinks))
	for ev := range st.Events() {
		nn, ok := ev.(notification.NewNotification)
		if !ok {
			continue
		}
		if err := r.Handle(ctx, nn.Notification); err != nil {
			r.logger.Error("Failed to relay notification", "notification_id", nn.Notification.ID, "error", err)
		}
	}
	return st.Err()
}

func dedupKey(id int64) string {
	return fmt.Sprintf("portal:relayed:%d", id)
}

// Handle forwards one notification to every sink. It is skipped when it was
// already relayed, and only marked relayed once every sink accepted it.
// Redis errors are logged and do not block forwarding.
func (r *Relay) Handle(ctx context.Context, n *notification.Notification) error {
	key := dedupKey(n.ID)
	if r.redis != nil {
		exists, err := r.redis.Exists(ctx, key).Result()
		if err != nil {
			r.logger.Warn("Redis error checking idempotency", "error", err)
		} else if exists > 0 {
			r.logger.Debug("Notification already relayed", "notification_id", n.ID)
			if r.metrics != nil {
				r.metrics.RelayDuplicates.Inc()
			}
			return nil
		}
	}

	msg := NewMessage(n, r.now())
	var errs []error
	for _, sink := range r.sinks {
		err := sink.Forward(ctx, msg)
		result := "ok"
		if err != nil {
			result = "error"
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
		if r.metrics != nil {
			r.metrics.RelayForwarded.WithLabelValues(sink.Name(), result).Inc()
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if r.redis != nil {
		if err := r.redis.Set(ctx, key, "1", dedupTTL).Err(); err != nil {
			r.logger.Warn("Failed to mark notification relayed", "notification_id", n.ID, "error", err)
		}
	}
	r.logger.Info("Notification relayed", "notification_id", n.ID, "message_id", msg.ID)
	return nil
}

func encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}
