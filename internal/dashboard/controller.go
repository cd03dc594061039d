// Package dashboard holds the portal's client state (session, feed, the
// notification being edited, its tracking stats) and publishes an explicit
// Change every time that state moves.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sapliy/pm-portal/internal/content"
	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/internal/recipients"
	"github.com/sapliy/pm-portal/internal/session"
	"github.com/sapliy/pm-portal/pkg/observability"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

type ChangeKind int

const (
	ChangeFeed ChangeKind = iota
	ChangeNotification
	ChangeSession
	ChangeTracking
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeFeed:
		return "feed"
	case ChangeNotification:
		return "notification"
	case ChangeSession:
		return "session"
	case ChangeTracking:
		return "tracking"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change tells observers which part of the state moved.
type Change struct {
	Kind           ChangeKind
	NotificationID int64
}

var (
	// ErrReasonRequired aborts a reject before any request is made.
	ErrReasonRequired = errors.New("a reason is required to reject")
	ErrNotOpen        = errors.New("no notification is open")
)

// Controller serializes all state mutation behind one mutex. Observers are
// called synchronously after the lock is released.
type Controller struct {
	mu        sync.Mutex
	current   *notification.Notification
	tracking  *notification.TrackingStats
	observers []func(Change)

	client  *portal.Client
	session *session.Session
	feed    *notification.Feed
	logger  *observability.Logger
}

func New(client *portal.Client, sess *session.Session, logger *observability.Logger) *Controller {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Controller{
		client:  client,
		session: sess,
		feed:    notification.NewFeed(),
		logger:  logger,
	}
}

// Subscribe registers an observer for every later Change.
func (c *Controller) Subscribe(fn func(Change)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) publish(ch Change) {
	c.mu.Lock()
	observers := append([]func(Change){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(ch)
	}
}

func (c *Controller) Feed() *notification.Feed {
	return c.feed
}

func (c *Controller) Session() *session.Session {
	return c.session
}

// Current returns a copy of the open notification, or nil.
func (c *Controller) Current() *notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	n := *c.current
	return &n
}

func (c *Controller) TrackingStats() *notification.TrackingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

// Start restores and probes the session.
func (c *Controller) Start(ctx context.Context) *portal.SessionUser {
	if err := c.session.Restore(); err != nil {
		c.logger.Warn("Failed to restore session", "error", err)
	}
	u := c.session.Probe(ctx)
	c.publish(Change{Kind: ChangeSession})
	return u
}

func (c *Controller) Login(ctx context.Context, email, password string) (*portal.SessionUser, error) {
	u, err := c.session.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.publish(Change{Kind: ChangeSession})
	return u, nil
}

func (c *Controller) Logout(ctx context.Context) error {
	if err := c.session.Logout(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.current, c.tracking = nil, nil
	c.mu.Unlock()
	c.feed.Replace(nil)
	c.publish(Change{Kind: ChangeSession})
	return nil
}

// Load replaces the feed with a full fetch.
func (c *Controller) Load(ctx context.Context) error {
	items, err := c.client.Notifications.List(ctx)
	if err != nil {
		return err
	}
	c.feed.Replace(items)
	c.publish(Change{Kind: ChangeFeed})
	return nil
}

// Watch applies push events to the feed until ctx is cancelled or the
// stream fails. Transport failures end the watch without a reconnect and
// are only logged.
func (c *Controller) Watch(ctx context.Context) error {
	st, err := c.client.Events.Subscribe(ctx)
	if err != nil {
		c.logger.Warn("Event stream unavailable", "error", err)
		return err
	}
	defer st.Close()

	for ev := range st.Events() {
		if _, ok := ev.(notification.Connected); ok {
			c.logger.Info("Event stream connected")
			continue
		}
		if c.feed.Apply(ev) {
			ch := Change{Kind: ChangeFeed}
			if nn, ok := ev.(notification.NewNotification); ok {
				ch.NotificationID = nn.Notification.ID
			}
			c.publish(ch)
		}
	}

	if err := st.Err(); err != nil {
		c.logger.Warn("Event stream closed", "error", err)
		return err
	}
	return nil
}

// Open fetches a notification for editing and marks it read when unread.
// A failed mark-read is logged; the notification is still opened.
func (c *Controller) Open(ctx context.Context, id int64) (*notification.Notification, error) {
	n, err := c.client.Notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if n.ShouldMarkRead() {
		if _, err := c.client.Notifications.Update(ctx, id, &notification.UpdateRequest{Status: notification.StatusRead}); err != nil {
			c.logger.Warn("Failed to mark notification read", "notification_id", id, "error", err)
		} else {
			n.Status = notification.StatusRead
		}
	}

	c.setCurrent(n)
	return n, nil
}

func (c *Controller) setCurrent(n *notification.Notification) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != n.ID {
		c.tracking = nil
	}
	c.current = n
	c.mu.Unlock()
	c.feed.Update(n)
	c.publish(Change{Kind: ChangeNotification, NotificationID: n.ID})
}

func (c *Controller) open() (*notification.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotOpen
	}
	n := *c.current
	return &n, nil
}

// Accept passes the review gate.
func (c *Controller) Accept(ctx context.Context) (*notification.Notification, error) {
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	if err := n.CheckReview(); err != nil {
		return nil, err
	}
	updated, err := c.client.Notifications.Update(ctx, n.ID, &notification.UpdateRequest{Action: notification.ActionAccepted})
	if err != nil {
		return nil, err
	}
	c.setCurrent(updated)
	return updated, nil
}

// Reject requires a reason. The reason is shown back to the user but is
// not sent to the backend.
func (c *Controller) Reject(ctx context.Context, reason string) (*notification.Notification, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	if err := n.CheckReview(); err != nil {
		return nil, err
	}
	updated, err := c.client.Notifications.Update(ctx, n.ID, &notification.UpdateRequest{
		Action: notification.ActionRejected,
		Status: notification.StatusRejected,
	})
	if err != nil {
		return nil, err
	}
	c.setCurrent(updated)
	return updated, nil
}

// Save stores edited content; saving always leaves the notification read.
func (c *Controller) Save(ctx context.Context, body string) (*notification.Notification, error) {
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	updated, err := c.client.Notifications.Update(ctx, n.ID, &notification.UpdateRequest{
		Content: &body,
		Status:  notification.StatusRead,
	})
	if err != nil {
		return nil, err
	}
	c.setCurrent(updated)
	return updated, nil
}

// Document decodes the open notification's content for image editing.
func (c *Controller) Document() (content.Document, error) {
	n, err := c.open()
	if err != nil {
		return content.Document{}, err
	}
	return content.Decode(n.Content), nil
}

// Suggest asks the AI endpoint for a rewrite of the open notification.
func (c *Controller) Suggest(ctx context.Context, prompt string) (string, error) {
	n, err := c.open()
	if err != nil {
		return "", err
	}
	return c.client.AI.Suggest(ctx, n.Content, prompt)
}

// Send delivers the open notification directly to recipients.
func (c *Controller) Send(ctx context.Context, recipientIDs []int64) (*notification.Notification, error) {
	if len(recipientIDs) == 0 {
		return nil, ErrNoRecipients
	}
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	if err := n.CheckSend(); err != nil {
		return nil, err
	}
	updated, err := c.client.Notifications.Send(ctx, n.ID, recipientIDs)
	if err != nil {
		return nil, err
	}
	c.setCurrent(updated)
	return updated, nil
}

// Preview resolves the bulk-send audience from the backend's groups and
// applications.
func (c *Controller) Preview(ctx context.Context, groupIDs, appIDs []int64) (recipients.Preview, error) {
	groups, err := c.client.Groups.List(ctx)
	if err != nil {
		return recipients.Preview{}, err
	}
	apps, err := c.client.Applications.List(ctx)
	if err != nil {
		return recipients.Preview{}, err
	}
	return recipients.Resolve(groups, groupIDs, apps, appIDs), nil
}

// SendBulk broadcasts the open notification. An empty dimension is refused
// locally with the preview's warning. On success the local copy takes its
// sent state from the server summary.
func (c *Controller) SendBulk(ctx context.Context, groupIDs, appIDs []int64) (*notification.BulkSendResult, error) {
	if len(groupIDs) == 0 {
		return nil, WarningError(recipients.WarningNoGroups)
	}
	if len(appIDs) == 0 {
		return nil, WarningError(recipients.WarningNoApplications)
	}
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	if err := n.CheckSend(); err != nil {
		return nil, err
	}

	res, err := c.client.Notifications.SendBulk(ctx, n.ID, groupIDs, appIDs)
	if err != nil {
		return nil, err
	}
	n.MarkSent(res)
	c.setCurrent(n)
	return res, nil
}

// WarningError reports a missing bulk-send dimension.
type WarningError recipients.Warning

func (w WarningError) Error() string {
	return string(w)
}

// Tracking re-fetches the stats of the open notification.
func (c *Controller) Tracking(ctx context.Context) (*notification.TrackingStats, error) {
	n, err := c.open()
	if err != nil {
		return nil, err
	}
	stats, err := c.client.Notifications.Tracking(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tracking = stats
	c.mu.Unlock()
	c.publish(Change{Kind: ChangeTracking, NotificationID: n.ID})
	return stats, nil
}
