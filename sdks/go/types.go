package portal

import "github.com/sapliy/pm-portal/internal/notification"

// Wire types returned and accepted by the client, re-exported so callers
// outside this module can name them.
type (
	Notification     = notification.Notification
	Status           = notification.Status
	Source           = notification.Source
	Action           = notification.Action
	User             = notification.User
	Ref              = notification.Ref
	SentVia          = notification.SentVia
	Tracking         = notification.Tracking
	Recipient        = notification.Recipient
	Group            = notification.Group
	Application      = notification.Application
	ApplicationStats = notification.ApplicationStats
	TrackingStats    = notification.TrackingStats
	BulkSendSummary  = notification.BulkSendSummary
	SentRelease      = notification.SentRelease
	BulkSendResult   = notification.BulkSendResult
	UpdateRequest    = notification.UpdateRequest
	CreateRequest    = notification.CreateRequest

	// Stream events.
	Event           = notification.Event
	Connected       = notification.Connected
	InitialSnapshot = notification.InitialSnapshot
	NewNotification = notification.NewNotification
)

const (
	StatusUnread   = notification.StatusUnread
	StatusRead     = notification.StatusRead
	StatusSent     = notification.StatusSent
	StatusRejected = notification.StatusRejected

	SourceExternal  = notification.SourceExternal
	SourcePMCreated = notification.SourcePMCreated

	ActionAccepted = notification.ActionAccepted
	ActionRejected = notification.ActionRejected
)
