package cli

import (
	"allocation-service/internal/allocation"
	"allocation-service/internal/service"
	"fmt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewEvaluateCmd creates the evaluate command
func NewEvaluateCmd() *cobra.Command {
	var rulesPath, orderPath, stockPath string
	var variants bool
	var incomingDays int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an order against a rules file",
		Long: `Evaluates an order against the allocation rules in a YAML file and prints the
resulting state. Exits non-zero when a rule blocks confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadRules(rulesPath)
			if err != nil {
				return err
			}
			for _, rule := range file.Rules {
				if err := service.ValidateRule(rule); err != nil {
					return fmt.Errorf("rule %q: %w", rule.Name, err)
				}
			}

			order, err := loadOrder(orderPath)
			if err != nil {
				return err
			}

			settings := file.Settings
			if cmd.Flags().Changed("variants") {
				settings.UseProductVariants = variants
			}
			if cmd.Flags().Changed("incoming-days") {
				settings.DefaultIncomingDays = incomingDays
			}
			evaluator := allocation.NewEvaluator(settings)

			stock, err := loadStock(stockPath, file.Rules, evaluator)
			if err != nil {
				return err
			}

			evaluation := evaluator.Evaluate(order, file.Rules, stock)
			printEvaluation(cmd, evaluation)

			if err := evaluation.Err(); err != nil {
				cmd.SilenceUsage = true
				return fmt.Errorf("order cannot be confirmed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "rules.yaml", "Rules file (YAML)")
	cmd.Flags().StringVar(&orderPath, "order", "", "Order file (JSON)")
	cmd.Flags().StringVar(&stockPath, "stock", "", "Stock levels file (JSON)")
	cmd.Flags().BoolVar(&variants, "variants", false, "Check targets per size for every rule")
	cmd.Flags().IntVar(&incomingDays, "incoming-days", 0, "Default incoming stock lookahead in days")
	cmd.MarkFlagRequired("order")

	return cmd
}

func printEvaluation(cmd *cobra.Command, evaluation allocation.Evaluation) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	out := cmd.OutOrStdout()
	state := string(evaluation.State)
	if len(evaluation.Blocking()) > 0 {
		state = red(state)
	} else {
		state = green(state)
	}
	fmt.Fprintf(out, "Allocation: %s\n", state)

	for _, result := range evaluation.Results {
		label := yellow("advisory")
		if result.Blocking {
			label = red("blocking")
		}
		fmt.Fprintf(out, "\n[%s] %s\n", label, result.RuleName)
		for _, shortfall := range result.Shortfalls {
			fmt.Fprintf(out, "  - %s\n", shortfall)
		}
	}
}
