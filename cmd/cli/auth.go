package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapliy/pm-portal/pkg/secrets"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the portal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			email = viper.GetString("email")
		}
		if email == "" {
			email = prompt(in, out, "Email: ")
		}

		var password string
		if secretID, _ := cmd.Flags().GetString("password-secret"); secretID != "" {
			provider, err := secrets.NewProvider(ctx)
			if err != nil {
				return err
			}
			if password, err = provider.Password(ctx, secretID); err != nil {
				return err
			}
		} else {
			password = prompt(in, out, "Password: ")
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		user, err := a.ctrl.Login(ctx, email, password)
		if err != nil {
			return fmt.Errorf("login failed: %s", portal.Message(err, "Login failed"))
		}
		fmt.Fprintf(out, "Successfully logged in as %s <%s>\n", user.Name, user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of the portal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.Session().Restore(); err != nil {
			a.logger.Warn("Failed to restore session", "error", err)
		}
		if err := a.ctrl.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := authedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		u := a.ctrl.Session().User()
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %d)\n", u.Name, u.Email, u.ID)
		return nil
	},
}

func prompt(in *bufio.Scanner, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	in.Scan()
	return strings.TrimSpace(in.Text())
}

func init() {
	loginCmd.Flags().String("email", "", "account e-mail")
	loginCmd.Flags().String("password-secret", "", "read the password from this AWS Secrets Manager secret")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
