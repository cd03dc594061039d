package mockapi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/apikey"
)

// RecipientInput is the writable part of a recipient.
type RecipientInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	GroupID *int64 `json:"groupId"`
}

// GroupInput is the writable part of a group.
type GroupInput struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Color          string  `json:"color"`
	ApplicationIDs []int64 `json:"applicationIds,omitempty"`
}

func (s *Store) Recipients() []notification.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recipients)
}

func (s *Store) CreateRecipient(in RecipientInput) (notification.Recipient, error) {
	if err := validateRecipient(in); err != nil {
		return notification.Recipient{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkGroup(in.GroupID); err != nil {
		return notification.Recipient{}, err
	}
	r := notification.Recipient{ID: s.id(), Name: in.Name, Email: in.Email, Role: in.Role, GroupID: in.GroupID}
	s.recipients = append(s.recipients, r)
	return r, nil
}

func (s *Store) UpdateRecipient(id int64, in RecipientInput) (notification.Recipient, error) {
	if err := validateRecipient(in); err != nil {
		return notification.Recipient{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkGroup(in.GroupID); err != nil {
		return notification.Recipient{}, err
	}
	i := slices.IndexFunc(s.recipients, func(r notification.Recipient) bool { return r.ID == id })
	if i < 0 {
		return notification.Recipient{}, fmt.Errorf("recipient %d: %w", id, ErrNotFound)
	}
	s.recipients[i] = notification.Recipient{ID: id, Name: in.Name, Email: in.Email, Role: in.Role, GroupID: in.GroupID}
	return s.recipients[i], nil
}

func (s *Store) DeleteRecipient(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.recipients)
	s.recipients = slices.DeleteFunc(s.recipients, func(r notification.Recipient) bool { return r.ID == id })
	if len(s.recipients) == n {
		return fmt.Errorf("recipient %d: %w", id, ErrNotFound)
	}
	return nil
}

func validateRecipient(in RecipientInput) error {
	if strings.TrimSpace(in.Name) == "" || !strings.Contains(in.Email, "@") {
		return ErrInvalidRecipient
	}
	return nil
}

func (s *Store) checkGroup(id *int64) error {
	if id == nil {
		return nil
	}
	if !slices.ContainsFunc(s.groups, func(g *groupRecord) bool { return g.ID == *id }) {
		return fmt.Errorf("group %d: %w", *id, ErrNotFound)
	}
	return nil
}

// Groups returns every group with its members and applications filled in.
func (s *Store) Groups() []notification.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupViews()
}

func (s *Store) groupViews() []notification.Group {
	out := make([]notification.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, s.groupView(g))
	}
	return out
}

func (s *Store) groupView(g *groupRecord) notification.Group {
	view := notification.Group{
		ID:             g.ID,
		Name:           g.Name,
		Description:    g.Description,
		Color:          g.Color,
		Users:          []notification.User{},
		ApplicationIDs: slices.Clone(g.ApplicationIDs),
	}
	for _, r := range s.recipients {
		if r.GroupID != nil && *r.GroupID == g.ID {
			view.Users = append(view.Users, notification.User{UserID: r.ID, Name: r.Name, Email: r.Email})
		}
	}
	view.UserCount = len(view.Users)
	for _, id := range g.ApplicationIDs {
		view.Applications = append(view.Applications, notification.Ref{ID: id, Name: s.appName(id)})
	}
	return view
}

func (s *Store) CreateGroup(in GroupInput) (notification.Group, error) {
	if strings.TrimSpace(in.Name) == "" {
		return notification.Group{}, ErrGroupNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &groupRecord{ID: s.id(), Name: in.Name, Description: in.Description, Color: in.Color, ApplicationIDs: in.ApplicationIDs}
	s.groups = append(s.groups, g)
	return s.groupView(g), nil
}

// UpdateGroup keeps the group's application links unless new ones are given.
func (s *Store) UpdateGroup(id int64, in GroupInput) (notification.Group, error) {
	if strings.TrimSpace(in.Name) == "" {
		return notification.Group{}, ErrGroupNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ID != id {
			continue
		}
		g.Name, g.Description, g.Color = in.Name, in.Description, in.Color
		if in.ApplicationIDs != nil {
			g.ApplicationIDs = in.ApplicationIDs
		}
		return s.groupView(g), nil
	}
	return notification.Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
}

// DeleteGroup removes the group and ungroups its members.
func (s *Store) DeleteGroup(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.groups)
	s.groups = slices.DeleteFunc(s.groups, func(g *groupRecord) bool { return g.ID == id })
	if len(s.groups) == n {
		return fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	for i, r := range s.recipients {
		if r.GroupID != nil && *r.GroupID == id {
			s.recipients[i].GroupID = nil
		}
	}
	return nil
}

func (s *Store) Applications() []notification.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appViews()
}

func (s *Store) appViews() []notification.Application {
	out := make([]notification.Application, len(s.apps))
	for i, a := range s.apps {
		out[i] = a.Application
		out[i].APIKey = apikey.Mask(a.APIKey)
	}
	return out
}

// AddApplication registers an application and issues its ingest key. The
// full key is only returned here.
func (s *Store) AddApplication(app notification.Application) (notification.Application, string, error) {
	key, hash, err := apikey.GenerateKey(apikey.Prefix, s.secret)
	if err != nil {
		return notification.Application{}, "", fmt.Errorf("generate api key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = s.id()
	app.APIKey = key
	if app.Status == "" {
		app.Status = "active"
	}
	s.apps = append(s.apps, &application{Application: app, keyHash: hash})
	view := app
	view.APIKey = apikey.Mask(key)
	return view, key, nil
}
