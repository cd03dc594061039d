package notification

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReviewable is returned when accept/reject is attempted on a
	// notification that is PM-created or already has an action.
	ErrNotReviewable = errors.New("notification cannot be accepted or rejected")
	// ErrNotSendable is returned when a send is attempted before the
	// notification passed the review gate.
	ErrNotSendable = errors.New("notification must be accepted before sending")
)

// EffectiveSource treats a missing source as external.
func (n *Notification) EffectiveSource() Source {
	if n.Source == "" {
		return SourceExternal
	}
	return n.Source
}

func (n *Notification) IsPMCreated() bool { return n.EffectiveSource() == SourcePMCreated }
func (n *Notification) IsAccepted() bool  { return n.Action == ActionAccepted }
func (n *Notification) IsRejected() bool  { return n.Action == ActionRejected }
func (n *Notification) IsSent() bool      { return n.Status == StatusSent }

// ShouldMarkRead reports whether opening the notification must issue a
// status=read update.
func (n *Notification) ShouldMarkRead() bool {
	return n.Status == StatusUnread
}

// NeedsReview reports whether the accept/reject gate still applies.
// PM-created notifications skip it entirely.
func (n *Notification) NeedsReview() bool {
	return !n.IsPMCreated() && !n.IsAccepted() && !n.IsRejected()
}

func (n *Notification) CanAccept() bool { return n.NeedsReview() && !n.IsSent() }
func (n *Notification) CanReject() bool { return n.NeedsReview() && !n.IsSent() }

// CanSend reports whether the notification may be broadcast. Already sent
// notifications may be sent again.
func (n *Notification) CanSend() bool {
	return n.IsPMCreated() || n.IsAccepted() || n.IsSent()
}

// CheckReview returns ErrNotReviewable unless the accept/reject gate applies.
func (n *Notification) CheckReview() error {
	if !n.CanAccept() {
		return fmt.Errorf("notification %d: %w", n.ID, ErrNotReviewable)
	}
	return nil
}

// CheckSend returns ErrNotSendable unless the notification is sendable.
func (n *Notification) CheckSend() error {
	if !n.CanSend() {
		return fmt.Errorf("notification %d: %w", n.ID, ErrNotSendable)
	}
	return nil
}

// MarkSent applies a successful bulk send result to the local copy. The
// backend's summary is authoritative; nothing is recomputed here.
func (n *Notification) MarkSent(res *BulkSendResult) {
	n.Status = StatusSent
	n.SentTo = res.SentRelease.Users
	n.SentVia = &SentVia{
		Groups:       res.Summary.Groups,
		Applications: res.Summary.Applications,
	}
}

// StatusLabel is the display label for a status or action value.
func StatusLabel(value string) string {
	switch strings.ToLower(value) {
	case string(ActionAccepted):
		return "Accepted"
	case string(ActionRejected):
		return "Rejected"
	case string(StatusSent):
		return "Sent"
	case string(StatusUnread):
		return "Unread"
	case string(StatusRead):
		return "Read"
	default:
		return value
	}
}

// SourceLabel is the display label for the notification's origin.
func (n *Notification) SourceLabel() string {
	if !n.IsPMCreated() {
		return "External"
	}
	if n.CreatedBy != "" {
		return "Created by " + n.CreatedBy
	}
	return "Created by You"
}

// OpenRateLevel buckets an open rate for display.
type OpenRateLevel string

const (
	OpenRateGood    OpenRateLevel = "good"
	OpenRateWarning OpenRateLevel = "warning"
	OpenRateLow     OpenRateLevel = "low"
)

func LevelForOpenRate(rate float64) OpenRateLevel {
	switch {
	case rate > 50:
		return OpenRateGood
	case rate > 20:
		return OpenRateWarning
	default:
		return OpenRateLow
	}
}
