package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sapliy/pm-portal/internal/dashboard"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage notification recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRecipientsCmd.RunE(cmd, args)
	},
}

var listRecipientsCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients by group",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		recs, err := a.client.Recipients.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load recipients")
		}
		groups, err := a.client.Groups.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load groups")
		}
		return dashboard.RenderRecipients(cmd.OutOrStdout(), recs, groups)
	},
}

var addRecipientCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.client.Recipients.Create(cmd.Context(), recipientRequest(cmd))
		if err != nil {
			return actionError(err, "Failed to add recipient")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recipient #%d added\n", rec.ID)
		return nil
	},
}

var updateRecipientCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.client.Recipients.Update(cmd.Context(), id, recipientRequest(cmd)); err != nil {
			return actionError(err, "Failed to update recipient")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recipient #%d updated\n", id)
		return nil
	},
}

var deleteRecipientCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.client.Recipients.Delete(cmd.Context(), id); err != nil {
			return actionError(err, "Failed to delete recipient")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recipient #%d deleted\n", id)
		return nil
	},
}

// recipientRequest builds the body from flags. A group of 0 or less means
// ungrouped.
func recipientRequest(cmd *cobra.Command) *portal.RecipientRequest {
	req := &portal.RecipientRequest{}
	req.Name, _ = cmd.Flags().GetString("name")
	req.Email, _ = cmd.Flags().GetString("email")
	req.Role, _ = cmd.Flags().GetString("role")
	if group, _ := cmd.Flags().GetInt64("group"); group > 0 {
		req.GroupID = &group
	}
	return req
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage recipient groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listGroupsCmd.RunE(cmd, args)
	},
}

var listGroupsCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		groups, err := a.client.Groups.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load groups")
		}
		return dashboard.RenderGroups(cmd.OutOrStdout(), groups)
	},
}

var addGroupCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		g, err := a.client.Groups.Create(cmd.Context(), groupRequest(cmd))
		if err != nil {
			return actionError(err, "Failed to create group")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Group #%d created\n", g.ID)
		return nil
	},
}

var updateGroupCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.client.Groups.Update(cmd.Context(), id, groupRequest(cmd)); err != nil {
			return actionError(err, "Failed to update group")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Group #%d updated\n", id)
		return nil
	},
}

var deleteGroupCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a group; its members become ungrouped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		recs, err := a.client.Recipients.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load recipients")
		}
		if err := a.client.Groups.Delete(cmd.Context(), id); err != nil {
			return actionError(err, "Failed to delete group")
		}
		groups, err := a.client.Groups.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load groups")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Group #%d deleted\n\n", id)
		return dashboard.RenderRecipients(cmd.OutOrStdout(), portal.Ungroup(recs, id), groups)
	},
}

func groupRequest(cmd *cobra.Command) *portal.GroupRequest {
	req := &portal.GroupRequest{}
	req.Name, _ = cmd.Flags().GetString("name")
	req.Description, _ = cmd.Flags().GetString("description")
	req.Color, _ = cmd.Flags().GetString("color")
	return req
}

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "List the applications notifications are delivered through",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		apps, err := a.client.Applications.List(cmd.Context())
		if err != nil {
			return actionError(err, "Failed to load applications")
		}
		return dashboard.RenderApplications(cmd.OutOrStdout(), apps)
	},
}

func init() {
	for _, c := range []*cobra.Command{addRecipientCmd, updateRecipientCmd} {
		c.Flags().String("name", "", "recipient name")
		c.Flags().String("email", "", "recipient e-mail")
		c.Flags().String("role", "", "recipient role")
		c.Flags().Int64("group", 0, "group id")
	}
	for _, c := range []*cobra.Command{addGroupCmd, updateGroupCmd} {
		c.Flags().String("name", "", "group name")
		c.Flags().String("description", "", "group description")
		c.Flags().String("color", "", "group colour (default "+portal.DefaultGroupColor+")")
	}

	recipientsCmd.AddCommand(listRecipientsCmd, addRecipientCmd, updateRecipientCmd, deleteRecipientCmd)
	groupsCmd.AddCommand(listGroupsCmd, addGroupCmd, updateGroupCmd, deleteGroupCmd)
	rootCmd.AddCommand(recipientsCmd, groupsCmd, applicationsCmd)
}
