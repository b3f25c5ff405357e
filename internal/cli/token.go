package cli

import (
	"allocation-service/internal/api"
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

// NewTokenCmd creates the token command
func NewTokenCmd() *cobra.Command {
	var name, role, secret string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token",
		Long:  `Signs a 24h token for the allocation API. Rule and settings endpoints need the admin role.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
			}

			token, err := api.IssueToken(secret, name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "allocctl", "Token subject name")
	cmd.Flags().StringVar(&role, "role", api.RoleAdmin, "Token role")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to $JWT_SECRET)")

	return cmd
}
