// Package recipients computes the audience of a bulk send from the selected
// groups and applications.
package recipients

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/sapliy/pm-portal/internal/notification"
)

// Warning flags a missing selection dimension.
type Warning string

const (
	WarningNoGroups       Warning = "Please select at least one group"
	WarningNoApplications Warning = "Please select at least one application"
)

// Preview is what the PM sees before confirming a bulk send.
type Preview struct {
	SelectedGroups       []notification.Group
	SelectedApplications []notification.Application
	// Users is the deduplicated audience, ordered by user id.
	Users      []notification.User
	TotalUsers int
	Warnings   []Warning
}

// Resolve builds the preview. The user count is computed even when a
// dimension is missing; the gap is reported through Warnings instead.
func Resolve(groups []notification.Group, groupIDs []int64, apps []notification.Application, appIDs []int64) Preview {
	p := Preview{}

	for _, g := range groups {
		if slices.Contains(groupIDs, g.ID) {
			p.SelectedGroups = append(p.SelectedGroups, g)
		}
	}
	for _, a := range apps {
		if slices.Contains(appIDs, a.ID) {
			p.SelectedApplications = append(p.SelectedApplications, a)
		}
	}

	p.Users = Audience(p.SelectedGroups)
	p.TotalUsers = len(p.Users)

	if len(p.SelectedGroups) == 0 {
		p.Warnings = append(p.Warnings, WarningNoGroups)
	}
	if len(p.SelectedApplications) == 0 {
		p.Warnings = append(p.Warnings, WarningNoApplications)
	}
	return p
}

// Audience is the union of the groups' members, deduplicated by user id.
// When a user appears in several groups the last occurrence wins.
func Audience(groups []notification.Group) []notification.User {
	byID := make(map[int64]notification.User)
	for _, g := range groups {
		for _, u := range g.Users {
			byID[u.UserID] = u
		}
	}

	users := make([]notification.User, 0, len(byID))
	for _, u := range byID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b notification.User) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return users
}

// Empty reports whether nothing at all is selected.
func (p Preview) Empty() bool {
	return len(p.SelectedGroups) == 0 && len(p.SelectedApplications) == 0
}

// Ready reports whether a send may be submitted.
func (p Preview) Ready() bool {
	return len(p.Warnings) == 0
}

// HasWarning reports whether w was raised for this selection.
func (p Preview) HasWarning(w Warning) bool {
	return slices.Contains(p.Warnings, w)
}

// GroupIDs and ApplicationIDs are the lists submitted to send-bulk.
func (p Preview) GroupIDs() []int64 {
	ids := make([]int64, len(p.SelectedGroups))
	for i, g := range p.SelectedGroups {
		ids[i] = g.ID
	}
	return ids
}

func (p Preview) ApplicationIDs() []int64 {
	ids := make([]int64, len(p.SelectedApplications))
	for i, a := range p.SelectedApplications {
		ids[i] = a.ID
	}
	return ids
}

// Render writes the human readable preview.
func (p Preview) Render(w io.Writer) error {
	if p.Empty() {
		_, err := fmt.Fprintln(w, "Select groups and applications to see the preview")
		return err
	}

	var b strings.Builder
	b.WriteString("Send Preview\n")
	fmt.Fprintf(&b, "  Total Users: %d\n", p.TotalUsers)

	if len(p.SelectedGroups) > 0 {
		fmt.Fprintf(&b, "  Groups (%d):\n", len(p.SelectedGroups))
		for _, g := range p.SelectedGroups {
			fmt.Fprintf(&b, "    - %s (%d)\n", g.Name, g.UserCount)
		}
	}
	if len(p.SelectedApplications) > 0 {
		fmt.Fprintf(&b, "  Applications (%d):\n", len(p.SelectedApplications))
		for _, a := range p.SelectedApplications {
			fmt.Fprintf(&b, "    - %s\n", a.Name)
		}
	}
	for _, warn := range p.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", warn)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Toggle adds id to ids when absent and removes it otherwise.
func Toggle(ids []int64, id int64) []int64 {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(slices.Clone(ids), i, i+1)
	}
	return append(slices.Clone(ids), id)
}

// SummaryMessage formats the result of a bulk send.
func SummaryMessage(res *notification.BulkSendResult) string {
	names := make([]string, len(res.Summary.Groups))
	for i, g := range res.Summary.Groups {
		names[i] = g.Name
	}
	return fmt.Sprintf("%s\n\nSummary:\n  Total Users: %d\n  Applications: %d/%d successful\n  Groups: %s",
		res.Message,
		res.Summary.TotalUsers,
		res.Summary.SuccessfulApplications, res.Summary.TotalApplications,
		strings.Join(names, ", "))
}
