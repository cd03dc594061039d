package mockapi

import (
	"fmt"

	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/bcryptutil"
	"github.com/sapliy/pm-portal/pkg/observability"
)

const (
	DemoEmail    = "pm@example.com"
	DemoPassword = "portal-demo"
)

// Seed fills the store with a demo PM, two applications, groups with
// members and a few release notes in different lifecycle states. It
// returns the applications' ingest keys by application name.
func (s *Store) Seed() (map[string]string, error) {
	if err := s.AddAccount(DemoEmail, "Demo PM", DemoPassword); err != nil {
		return nil, err
	}

	keys := make(map[string]string)
	var appIDs []int64
	for _, app := range []notification.Application{
		{Name: "Web Console", BaseURL: "https://console.example.com", NotificationEndpoint: "/api/release-notes", ActiveUsers: 1200, Description: "Customer web console"},
		{Name: "Mobile", BaseURL: "https://m.example.com", NotificationEndpoint: "/push", ActiveUsers: 800, Description: "iOS and Android apps"},
		{Name: "Legacy Portal", BaseURL: "https://legacy.example.com", NotificationEndpoint: "/notify", Status: "inactive", Description: "Scheduled for retirement"},
	} {
		view, key, err := s.AddApplication(app)
		if err != nil {
			return nil, err
		}
		keys[view.Name] = key
		appIDs = append(appIDs, view.ID)
	}

	beta, err := s.CreateGroup(GroupInput{Name: "Beta Testers", Description: "Early access customers", Color: "#28a745", ApplicationIDs: appIDs[:2]})
	if err != nil {
		return nil, err
	}
	internal, err := s.CreateGroup(GroupInput{Name: "Internal", Description: "Staff accounts", Color: "#007bff", ApplicationIDs: appIDs[:1]})
	if err != nil {
		return nil, err
	}

	for i, rec := range []RecipientInput{
		{Name: "Alice Moreau", Email: "alice@example.com", Role: "Customer", GroupID: &beta.ID},
		{Name: "Bilal Haddad", Email: "bilal@example.com", Role: "Customer", GroupID: &beta.ID},
		{Name: "Chen Wei", Email: "chen@example.com", Role: "Engineer", GroupID: &internal.ID},
		{Name: "Dana Kowalski", Email: "dana@example.com", Role: "Support"},
	} {
		if _, err := s.CreateRecipient(rec); err != nil {
			return nil, fmt.Errorf("seed recipient %d: %w", i, err)
		}
	}

	for _, n := range []notification.Notification{
		{Title: "Release 4.2: SSO for teams", Content: "<p>Single sign-on is now available for team plans.</p>", JiraReleaseNotes: "PORT-412"},
		{Title: "Release 4.1: Faster exports", Content: "<p>CSV exports are up to 3x faster.</p>", JiraReleaseNotes: "PORT-398"},
	} {
		if _, err := s.Ingest(keys["Web Console"], n); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// NewSeeded returns a server over a freshly seeded store. The hasher cost
// is configurable so tests can use the minimum.
func NewSeeded(hasher bcryptutil.BcryptUtils, secret string, logger *observability.Logger) (*Server, map[string]string, error) {
	store := NewStore(hasher, secret)
	keys, err := store.Seed()
	if err != nil {
		return nil, nil, fmt.Errorf("seed store: %w", err)
	}
	return NewServer(store, logger), keys, nil
}
