package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// AuthService handles the cookie session lifecycle.
type AuthService struct {
	client *Client
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionUser is the logged-in PM.
type SessionUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type LoginResponse struct {
	User SessionUser `json:"user"`
}

// Login sets the session cookie and returns the user from the response.
func (s *AuthService) Login(ctx context.Context, email, password string) (*SessionUser, error) {
	var res LoginResponse
	if err := s.client.do(ctx, http.MethodPost, "/auth/login", &LoginRequest{Email: email, Password: password}, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Me returns the user of the current session.
func (s *AuthService) Me(ctx context.Context) (*SessionUser, error) {
	var res SessionUser
	if err := s.client.do(ctx, http.MethodGet, "/auth/me", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// NotificationsService handles notification records and their lifecycle.
type NotificationsService struct {
	client *Client
}

func (s *NotificationsService) List(ctx context.Context) ([]*Notification, error) {
	var res []*Notification
	err := s.client.do(ctx, http.MethodGet, "/notifications", nil, &res)
	return res, err
}

func (s *NotificationsService) Get(ctx context.Context, id int64) (*Notification, error) {
	var res Notification
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/notifications/%d", id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Update issues a partial PUT and returns the stored notification.
func (s *NotificationsService) Update(ctx context.Context, id int64, req *UpdateRequest) (*Notification, error) {
	var res Notification
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("/notifications/%d", id), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *NotificationsService) Create(ctx context.Context, req *CreateRequest) (*Notification, error) {
	var res Notification
	if err := s.client.do(ctx, http.MethodPost, "/notifications/create", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type SendRequest struct {
	RecipientIDs []int64 `json:"recipientIds"`
}

// Send delivers the notification directly to individual recipients.
func (s *NotificationsService) Send(ctx context.Context, id int64, recipientIDs []int64) (*Notification, error) {
	var res Notification
	if err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("/notifications/%d/send", id), &SendRequest{RecipientIDs: recipientIDs}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type SendBulkRequest struct {
	GroupIDs       []int64 `json:"groupIds"`
	ApplicationIDs []int64 `json:"applicationIds"`
}

// SendBulk broadcasts to every member of the groups through the
// applications. Fan-out happens server side.
func (s *NotificationsService) SendBulk(ctx context.Context, id int64, groupIDs, applicationIDs []int64) (*BulkSendResult, error) {
	var res BulkSendResult
	req := &SendBulkRequest{GroupIDs: groupIDs, ApplicationIDs: applicationIDs}
	if err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("/notifications/%d/send-bulk", id), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *NotificationsService) Tracking(ctx context.Context, id int64) (*TrackingStats, error) {
	var res TrackingStats
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/notifications/%d/tracking", id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RecipientsService handles recipient records.
type RecipientsService struct {
	client *Client
}

type RecipientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	GroupID *int64 `json:"groupId"`
}

func (s *RecipientsService) List(ctx context.Context) ([]Recipient, error) {
	var res []Recipient
	err := s.client.do(ctx, http.MethodGet, "/recipients", nil, &res)
	return res, err
}

func (s *RecipientsService) Create(ctx context.Context, req *RecipientRequest) (*Recipient, error) {
	var res Recipient
	if err := s.client.do(ctx, http.MethodPost, "/recipients", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *RecipientsService) Update(ctx context.Context, id int64, req *RecipientRequest) (*Recipient, error) {
	var res Recipient
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("/recipients/%d", id), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *RecipientsService) Delete(ctx context.Context, id int64) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("/recipients/%d", id), nil, nil)
}

// GroupsService handles recipient groups.
type GroupsService struct {
	client *Client
}

type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// DefaultGroupColor is used for new groups when no colour is given.
const DefaultGroupColor = "#007bff"

func (s *GroupsService) List(ctx context.Context) ([]Group, error) {
	var res []Group
	err := s.client.do(ctx, http.MethodGet, "/groups", nil, &res)
	return res, err
}

func (s *GroupsService) Create(ctx context.Context, req *GroupRequest) (*Group, error) {
	if req.Color == "" {
		req.Color = DefaultGroupColor
	}
	var res Group
	if err := s.client.do(ctx, http.MethodPost, "/groups", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *GroupsService) Update(ctx context.Context, id int64, req *GroupRequest) (*Group, error) {
	var res Group
	if err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("/groups/%d", id), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete removes the group. The backend ungroups its members.
func (s *GroupsService) Delete(ctx context.Context, id int64) error {
	return s.client.do(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d", id), nil, nil)
}

// Ungroup mirrors a group deletion on a locally held recipient list.
func Ungroup(recipients []Recipient, groupID int64) []Recipient {
	out := make([]Recipient, len(recipients))
	for i, r := range recipients {
		if r.GroupID != nil && *r.GroupID == groupID {
			r.GroupID = nil
		}
		out[i] = r
	}
	return out
}

type ApplicationsService struct {
	client *Client
}

func (s *ApplicationsService) List(ctx context.Context) ([]Application, error) {
	var res []Application
	err := s.client.do(ctx, http.MethodGet, "/applications", nil, &res)
	return res, err
}

// AIService proxies the content suggestion endpoint.
type AIService struct {
	client *Client
}

type SuggestRequest struct {
	Content string `json:"content"`
	Prompt  string `json:"prompt"`
}

type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
}

// Suggest asks for a rewrite of content. A blank prompt is a no-op and
// returns an empty suggestion without a request.
func (s *AIService) Suggest(ctx context.Context, content, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", nil
	}
	var res SuggestResponse
	if err := s.client.do(ctx, http.MethodPost, "/ai/suggest", &SuggestRequest{Content: content, Prompt: prompt}, &res); err != nil {
		return "", err
	}
	return res.Suggestion, nil
}
