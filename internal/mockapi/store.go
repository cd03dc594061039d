// Package mockapi is an in-memory implementation of the portal backend used
// for local development and as the fake server in tests.
package mockapi

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/internal/recipients"
	"github.com/sapliy/pm-portal/pkg/apikey"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrTitleRequired      = errors.New("Title is required")
	ErrNoRecipients       = errors.New("Please select at least one recipient")
	ErrNoGroups           = errors.New("Please select at least one group")
	ErrNoApplications     = errors.New("Please select at least one application")
	ErrInvalidAPIKey      = errors.New("Invalid API key")
	ErrInvalidRecipient   = errors.New("Name and a valid email are required")
	ErrGroupNameRequired  = errors.New("Group name is required")
)

// Account is a PM allowed to log in.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
}

type application struct {
	notification.Application
	keyHash string
}

type open struct {
	UserID        int64
	ApplicationID int64
	At            time.Time
}

// Store holds all backend state behind one mutex.
type Store struct {
	mu sync.Mutex

	hasher bcryptutil.BcryptUtils
	secret string
	now    func() time.Time

	accounts   map[string]*Account
	sessions   map[string]int64
	notifs     []*notification.Notification
	recipients []notification.Recipient
	groups     []*groupRecord
	apps       []*application
	opens      map[int64][]open

	nextID int64
}

type groupRecord struct {
	ID             int64
	Name           string
	Description    string
	Color          string
	ApplicationIDs []int64
}

func NewStore(hasher bcryptutil.BcryptUtils, secret string) *Store {
	return &Store{
		hasher:   hasher,
		secret:   secret,
		now:      time.Now,
		accounts: make(map[string]*Account),
		sessions: make(map[string]int64),
		opens:    make(map[int64][]open),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddAccount registers a PM who can log in.
func (s *Store) AddAccount(email, name, password string) error {
	hash, err := s.hasher.GenerateHash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(email)] = &Account{ID: s.id(), Email: email, Name: name, PasswordHash: hash}
	return nil
}

// Authenticate checks the credentials and opens a session under token.
func (s *Store) Authenticate(email, password, token string) (*Account, error) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok || !s.hasher.CompareHash(password, acc.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	s.sessions[token] = acc.ID
	s.mu.Unlock()
	return acc, nil
}

func (s *Store) SessionAccount(token string) (*Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	for _, acc := range s.accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return nil, false
}

func (s *Store) EndSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Notifications returns copies, newest first.
func (s *Store) Notifications() []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Notification, len(s.notifs))
	for i, n := range s.notifs {
		out[i] = clone(n)
	}
	return out
}

func (s *Store) Notification(id int64) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return clone(n), nil
}

func (s *Store) find(id int64) (*notification.Notification, error) {
	for _, n := range s.notifs {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
}

// Ingest stores an incoming external notification. The caller must present
// a valid application key.
func (s *Store) Ingest(key string, n notification.Notification) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := slices.ContainsFunc(s.apps, func(a *application) bool {
		return apikey.Verify(key, apikey.Prefix, a.keyHash, s.secret)
	})
	if !valid {
		return nil, ErrInvalidAPIKey
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, ErrTitleRequired
	}

	return s.insert(&notification.Notification{
		Title:            n.Title,
		Content:          n.Content,
		JiraReleaseNotes: n.JiraReleaseNotes,
		TargetEmail:      n.TargetEmail,
		Status:           notification.StatusUnread,
		Source:           notification.SourceExternal,
	}), nil
}

func (s *Store) insert(n *notification.Notification) *notification.Notification {
	now := s.now()
	n.ID = s.id()
	n.CreatedAt = now
	n.UpdatedAt = now
	s.notifs = append([]*notification.Notification{n}, s.notifs...)
	return clone(n)
}

// Update applies a partial update. Review actions are checked against the
// lifecycle before anything is written.
func (s *Store) Update(id int64, req notification.UpdateRequest) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if req.Action != "" {
		if err := n.CheckReview(); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if req.Content != nil {
		n.Content = *req.Content
	}
	if req.Status != "" {
		n.Status = req.Status
	}
	if req.Action != "" {
		n.Action = req.Action
		n.ActionDate = &now
	}
	n.UpdatedAt = now
	return clone(n), nil
}

// Create stores a PM-authored notification. Drafts are kept as read; a
// non-draft is delivered to the recipients immediately.
func (s *Store) Create(createdBy string, req notification.CreateRequest) (*notification.Notification, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}
	if !req.IsDraft && len(req.RecipientIDs) == 0 {
		return nil, ErrNoRecipients
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := &notification.Notification{
		Title:            req.Title,
		Content:          req.Content,
		JiraReleaseNotes: req.JiraReleaseNotes,
		Status:           notification.StatusRead,
		Source:           notification.SourcePMCreated,
		CreatedBy:        createdBy,
	}
	if !req.IsDraft {
		s.deliver(n, s.usersFor(req.RecipientIDs), nil)
	}
	return s.insert(n), nil
}

// Send delivers directly to individual recipients.
func (s *Store) Send(id int64, recipientIDs []int64) (*notification.Notification, error) {
	if len(recipientIDs) == 0 {
		return nil, ErrNoRecipients
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := n.CheckSend(); err != nil {
		return nil, err
	}
	s.deliver(n, s.usersFor(recipientIDs), nil)
	return clone(n), nil
}

// SendBulk fans a notification out to the members of the groups through the
// applications. Only active applications count as successful.
func (s *Store) SendBulk(id int64, groupIDs, appIDs []int64) (*notification.BulkSendResult, error) {
	if len(groupIDs) == 0 {
		return nil, ErrNoGroups
	}
	if len(appIDs) == 0 {
		return nil, ErrNoApplications
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := n.CheckSend(); err != nil {
		return nil, err
	}

	preview := recipients.Resolve(s.groupViews(), groupIDs, s.appViews(), appIDs)

	summary := notification.BulkSendSummary{
		TotalUsers:        preview.TotalUsers,
		TotalApplications: len(preview.SelectedApplications),
	}
	for _, g := range preview.SelectedGroups {
		summary.Groups = append(summary.Groups, notification.Ref{ID: g.ID, Name: g.Name})
	}
	for _, a := range preview.SelectedApplications {
		summary.Applications = append(summary.Applications, notification.Ref{ID: a.ID, Name: a.Name})
		if a.Status == "active" {
			summary.SuccessfulApplications++
		}
	}

	s.deliver(n, preview.Users, &notification.SentVia{Groups: summary.Groups, Applications: summary.Applications})

	return &notification.BulkSendResult{
		Message: fmt.Sprintf("Notification sent to %d users via %d applications",
			summary.TotalUsers, summary.SuccessfulApplications),
		Summary:     summary,
		SentRelease: notification.SentRelease{Users: preview.Users},
	}, nil
}

func (s *Store) deliver(n *notification.Notification, users []notification.User, via *notification.SentVia) {
	now := s.now()
	n.Status = notification.StatusSent
	n.SentTo = users
	n.SentAt = &now
	n.SentVia = via
	n.UpdatedAt = now
	delete(s.opens, n.ID)
}

func (s *Store) usersFor(recipientIDs []int64) []notification.User {
	var users []notification.User
	for _, r := range s.recipients {
		if slices.Contains(recipientIDs, r.ID) {
			users = append(users, notification.User{UserID: r.ID, Name: r.Name, Email: r.Email})
		}
	}
	return users
}

// RecordOpen marks that userID opened a sent notification, optionally
// through an application. Repeated opens keep the first timestamp.
func (s *Store) RecordOpen(id, userID, appID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(n.SentTo, func(u notification.User) bool { return u.UserID == userID }) {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	for _, o := range s.opens[id] {
		if o.UserID == userID && o.ApplicationID == appID {
			return nil
		}
	}
	s.opens[id] = append(s.opens[id], open{UserID: userID, ApplicationID: appID, At: s.now()})
	return nil
}

// Tracking aggregates the recorded opens of a notification.
func (s *Store) Tracking(id int64) (*notification.TrackingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}

	stats := &notification.TrackingStats{
		NotificationID: id,
		TotalSent:      len(n.SentTo),
		OpenedUsers:    []notification.User{},
		NotOpenedUsers: []notification.User{},
		ByApplication:  []notification.ApplicationStats{},
	}

	first := make(map[int64]open)
	for _, o := range s.opens[id] {
		if prev, ok := first[o.UserID]; !ok || o.At.Before(prev.At) {
			first[o.UserID] = o
		}
		if stats.LastOpenedAt == nil || o.At.After(*stats.LastOpenedAt) {
			at := o.At
			stats.LastOpenedAt = &at
		}
	}

	for _, u := range n.SentTo {
		o, ok := first[u.UserID]
		if !ok {
			stats.NotOpenedUsers = append(stats.NotOpenedUsers, u)
			continue
		}
		at := o.At
		u.OpenedAt = &at
		u.ApplicationName = s.appName(o.ApplicationID)
		stats.OpenedUsers = append(stats.OpenedUsers, u)
	}
	stats.TotalOpened = len(stats.OpenedUsers)
	stats.OpenRate = rate(stats.TotalOpened, stats.TotalSent)

	if n.SentVia != nil {
		for _, ref := range n.SentVia.Applications {
			opened := make(map[int64]bool)
			for _, o := range s.opens[id] {
				if o.ApplicationID == ref.ID {
					opened[o.UserID] = true
				}
			}
			stats.ByApplication = append(stats.ByApplication, notification.ApplicationStats{
				ApplicationID:   ref.ID,
				ApplicationName: ref.Name,
				TotalSent:       stats.TotalSent,
				Opened:          len(opened),
				OpenRate:        rate(len(opened), stats.TotalSent),
			})
		}
	}
	return stats, nil
}

func rate(opened, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(opened)/float64(total)*1000) / 10
}

func (s *Store) appName(id int64) string {
	for _, a := range s.apps {
		if a.ID == id {
			return a.Name
		}
	}
	return ""
}

func clone(n *notification.Notification) *notification.Notification {
	c := *n
	c.SentTo = slices.Clone(n.SentTo)
	if n.SentVia != nil {
		via := notification.SentVia{
			Groups:       slices.Clone(n.SentVia.Groups),
			Applications: slices.Clone(n.SentVia.Applications),
		}
		c.SentVia = &via
	}
	return &c
}
