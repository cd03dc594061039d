package dashboard

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sapliy/pm-portal/internal/notification"
)

const (
	MaxTitleLength = 200

	// emptyEditorContent is what an untouched rich-text editor produces.
	emptyEditorContent = "<p><br></p>"
)

var ErrNoRecipients = errors.New("Please select at least one recipient")

// CreateForm is a PM-authored notification before submission.
type CreateForm struct {
	Title        string
	Content      string
	JiraRef      string
	RecipientIDs []int64
}

// FormErrors maps invalid fields to their messages.
type FormErrors struct {
	Title   string
	Content string
}

func (e *FormErrors) Error() string {
	var msgs []string
	if e.Title != "" {
		msgs = append(msgs, e.Title)
	}
	if e.Content != "" {
		msgs = append(msgs, e.Content)
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the title and content rules shared by drafts and sends.
func (f CreateForm) Validate() error {
	errs := &FormErrors{}
	switch {
	case strings.TrimSpace(f.Title) == "":
		errs.Title = "Title is required"
	case utf8.RuneCountInString(f.Title) > MaxTitleLength:
		errs.Title = "Title must be less than 200 characters"
	}
	if strings.TrimSpace(f.Content) == "" || f.Content == emptyEditorContent {
		errs.Content = "Content is required"
	}
	if errs.Title != "" || errs.Content != "" {
		return errs
	}
	return nil
}

// Create submits the form as a draft or as an immediate send. A send
// needs at least one recipient; neither request is made when the form is
// invalid.
func (c *Controller) Create(ctx context.Context, f CreateForm, draft bool) (*notification.Notification, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	req := &notification.CreateRequest{
		Title:            f.Title,
		Content:          f.Content,
		JiraReleaseNotes: f.JiraRef,
		Source:           notification.SourcePMCreated,
		IsDraft:          draft,
	}
	if !draft {
		if len(f.RecipientIDs) == 0 {
			return nil, ErrNoRecipients
		}
		req.RecipientIDs = f.RecipientIDs
	}

	n, err := c.client.Notifications.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	c.feed.Prepend(n)
	c.publish(Change{Kind: ChangeFeed, NotificationID: n.ID})
	return n, nil
}
