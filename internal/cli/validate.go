package cli

import (
	"allocation-service/internal/service"
	"fmt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadRules(rulesPath)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			out := cmd.OutOrStdout()

			invalid := 0
			for _, rule := range file.Rules {
				if err := service.ValidateRule(rule); err != nil {
					invalid++
					fmt.Fprintf(out, "%s %s: %v\n", red("✗"), rule.Name, err)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", green("✓"), rule.Name)
			}

			if invalid > 0 {
				cmd.SilenceUsage = true
				return fmt.Errorf("%d of %d rules are invalid", invalid, len(file.Rules))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "rules.yaml", "Rules file (YAML)")

	return cmd
}
