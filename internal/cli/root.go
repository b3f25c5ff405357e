package cli

import "github.com/spf13/cobra"

// NewRootCmd wires the allocctl subcommands.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "allocctl",
		Short: "Apparel allocation rule tool",
		Long: `allocctl checks sales orders against apparel allocation rules offline and
issues tokens for the allocation API.`,
		Version:       version,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewEvaluateCmd())
	rootCmd.AddCommand(NewValidateCmd())
	rootCmd.AddCommand(NewTokenCmd())

	return rootCmd
}
