package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sapliy/pm-portal/internal/content"
	"github.com/sapliy/pm-portal/internal/notification"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage images embedded in a notification",
}

var listImagesCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List embedded images",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, n *notification.Notification) error {
		doc := content.Decode(n.Content)
		out := cmd.OutOrStdout()
		if len(doc.Images) == 0 {
			fmt.Fprintln(out, "No images")
			return nil
		}
		for _, img := range doc.Images {
			fmt.Fprintf(out, "%s\t%s\n", img.ID, img.Name)
		}
		return nil
	}),
}

var addImagesCmd = &cobra.Command{
	Use:   "add <id> <file>...",
	Short: "Upload images into a notification",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Files are validated before anything is sent.
		var images []content.ImageItem
		for _, path := range args[1:] {
			img, err := content.LoadImage(path, time.Now())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			images = append(images, img)
			// Ids derive from the millisecond clock.
			time.Sleep(time.Millisecond)
		}

		return withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
			doc, err := a.ctrl.Document()
			if err != nil {
				return err
			}
			for _, img := range images {
				doc.Add(img)
			}
			if _, err := a.ctrl.Save(cmd.Context(), doc.Encode()); err != nil {
				return actionError(err, "Failed to save notification")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d image(s)\n", len(images))
			return nil
		})(cmd, args[:1])
	},
}

var removeImageCmd = &cobra.Command{
	Use:   "remove <id> <image-id>",
	Short: "Remove an embedded image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageID := args[1]
		return withOpen(func(cmd *cobra.Command, a *app, _ *notification.Notification) error {
			doc, err := a.ctrl.Document()
			if err != nil {
				return err
			}
			if !doc.Remove(imageID) {
				return fmt.Errorf("image %s not found", imageID)
			}
			if _, err := a.ctrl.Save(cmd.Context(), doc.Encode()); err != nil {
				return actionError(err, "Failed to save notification")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed image %s\n", imageID)
			return nil
		})(cmd, args[:1])
	},
}

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "AI writing assistant",
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <id>",
	Short: "Ask for a rewrite of a notification",
	Args:  cobra.ExactArgs(1),
	RunE: withOpen(func(cmd *cobra.Command, a *app, n *notification.Notification) error {
		promptText, _ := cmd.Flags().GetString("prompt")
		apply, _ := cmd.Flags().GetBool("apply")
		out := cmd.OutOrStdout()

		suggestion, err := a.ctrl.Suggest(cmd.Context(), promptText)
		if err != nil {
			return actionError(err, "Failed to get AI suggestion")
		}
		if suggestion == "" {
			fmt.Fprintln(out, "Nothing to suggest, enter a prompt.")
			return nil
		}
		fmt.Fprintln(out, suggestion)

		if !apply {
			return nil
		}
		if _, err := a.ctrl.Save(cmd.Context(), content.ApplySuggestion(n.Content, suggestion)); err != nil {
			return actionError(err, "Failed to save notification")
		}
		fmt.Fprintln(out, "\nSuggestion applied")
		return nil
	}),
}

func init() {
	suggestCmd.Flags().String("prompt", "", "what to change")
	suggestCmd.Flags().Bool("apply", false, "save the suggestion, keeping the current images")

	imagesCmd.AddCommand(listImagesCmd, addImagesCmd, removeImageCmd)
	aiCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(imagesCmd, aiCmd)
}
