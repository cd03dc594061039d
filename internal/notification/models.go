package notification

import (
	"time"
)

type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusSent     Status = "sent"
	StatusRejected Status = "rejected"
)

type Source string

const (
	SourceExternal  Source = "external"
	SourcePMCreated Source = "pm_created"
)

type Action string

const (
	ActionAccepted Action = "accepted"
	ActionRejected Action = "rejected"
)

// User is a group member or a sent-to entry.
type User struct {
	UserID          int64      `json:"userId"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	OpenedAt        *time.Time `json:"openedAt,omitempty"`
	ApplicationName string     `json:"applicationName,omitempty"`
}

// Ref is the {id, name} pair the backend uses for groups and applications
// inside send summaries.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SentVia struct {
	Groups       []Ref `json:"groups"`
	Applications []Ref `json:"applications"`
}

// Tracking is the open-tracking summary embedded in a sent notification.
type Tracking struct {
	TotalSent    int        `json:"totalSent"`
	Opened       int        `json:"opened"`
	OpenRate     float64    `json:"openRate"`
	OpenedUsers  []User     `json:"openedUsers"`
	LastOpenedAt *time.Time `json:"lastOpenedAt"`
}

type Notification struct {
	ID               int64      `json:"id"`
	TargetEmail      string     `json:"targetEmail,omitempty"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	JiraReleaseNotes string     `json:"jiraReleaseNotes"`
	Status           Status     `json:"status"`
	Source           Source     `json:"source,omitempty"`
	CreatedBy        string     `json:"createdBy,omitempty"`
	Action           Action     `json:"action,omitempty"`
	ActionDate       *time.Time `json:"actionDate,omitempty"`
	SentTo           []User     `json:"sentTo,omitempty"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
	SentVia          *SentVia   `json:"sentVia,omitempty"`
	Tracking         *Tracking  `json:"tracking,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type Recipient struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	GroupID *int64 `json:"groupId"`
}

type Group struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Color          string  `json:"color"`
	UserCount      int     `json:"userCount"`
	Users          []User  `json:"users,omitempty"`
	ApplicationIDs []int64 `json:"applicationIds,omitempty"`
	Applications   []Ref   `json:"applications,omitempty"`
}

type Application struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	BaseURL              string `json:"baseUrl"`
	NotificationEndpoint string `json:"notificationEndpoint"`
	APIKey               string `json:"apiKey"`
	Status               string `json:"status"`
	ActiveUsers          int    `json:"activeUsers"`
	Description          string `json:"description"`
}

// ApplicationStats is the per-application slice of TrackingStats.
type ApplicationStats struct {
	ApplicationID   int64   `json:"applicationId"`
	ApplicationName string  `json:"applicationName"`
	TotalSent       int     `json:"totalSent"`
	Opened          int     `json:"opened"`
	OpenRate        float64 `json:"openRate"`
}

// TrackingStats is the backend-computed aggregate served by
// GET /notifications/:id/tracking.
type TrackingStats struct {
	NotificationID int64              `json:"notificationId"`
	TotalSent      int                `json:"totalSent"`
	TotalOpened    int                `json:"totalOpened"`
	OpenRate       float64            `json:"openRate"`
	OpenedUsers    []User             `json:"openedUsers"`
	NotOpenedUsers []User             `json:"notOpenedUsers"`
	ByApplication  []ApplicationStats `json:"byApplication"`
	LastOpenedAt   *time.Time         `json:"lastOpenedAt"`
}

type BulkSendSummary struct {
	TotalUsers             int   `json:"totalUsers"`
	SuccessfulApplications int   `json:"successfulApplications"`
	TotalApplications      int   `json:"totalApplications"`
	Groups                 []Ref `json:"groups"`
	Applications           []Ref `json:"applications"`
}

type SentRelease struct {
	Users []User `json:"users"`
}

// BulkSendResult is the response envelope of POST /notifications/:id/send-bulk.
type BulkSendResult struct {
	Message     string          `json:"message"`
	Summary     BulkSendSummary `json:"summary"`
	SentRelease SentRelease     `json:"sentRelease"`
}

// UpdateRequest carries the partial PUT body; zero fields are omitted.
type UpdateRequest struct {
	Content *string `json:"content,omitempty"`
	Status  Status  `json:"status,omitempty"`
	Action  Action  `json:"action,omitempty"`
}

type CreateRequest struct {
	Title            string  `json:"title"`
	Content          string  `json:"content"`
	JiraReleaseNotes string  `json:"jiraReleaseNotes"`
	Source           Source  `json:"source"`
	RecipientIDs     []int64 `json:"recipientIds,omitempty"`
	IsDraft          bool    `json:"isDraft"`
}
