package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"caseledger/internal/harness"
)

// NewTestCommand creates the test command, which runs ledger scenarios
// from YAML files and reports pass/fail per scenario.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run ledger scenarios",
		Long:  "Load YAML scenario files from a directory, run each against an in-memory ledger, and report pass/fail.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			scenarios, err := harness.LoadScenarios(dir)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load scenarios", err)
			}
			if len(scenarios) == 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files found in %s", dir))
			}

			var outcomes []scenarioOutcome
			failed := 0
			for _, scenario := range scenarios {
				result, err := harness.Run(scenario)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed to run", scenario.Name), err)
				}
				outcomes = append(outcomes, scenarioOutcome{
					Name:     scenario.Name,
					Passed:   result.Passed,
					Failures: result.Failures,
				})
				if !result.Passed {
					failed++
				}
			}

			if rootOpts.Format == "json" {
				if err := formatter.Success(testSummary{Scenarios: outcomes, Failed: failed}); err != nil {
					return err
				}
			} else {
				for _, outcome := range outcomes {
					status := "PASS"
					if !outcome.Passed {
						status = "FAIL"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", status, outcome.Name)
					for _, failure := range outcome.Failures {
						fmt.Fprintf(cmd.OutOrStdout(), "      %s\n", failure)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d scenario(s), %d failed\n", len(outcomes), failed)
			}

			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "scenarios", "", "directory of YAML scenario files")
	cmd.MarkFlagRequired("scenarios")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return cmd
}

type scenarioOutcome struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

type testSummary struct {
	Scenarios []scenarioOutcome `json:"scenarios"`
	Failed    int               `json:"failed"`
}
