package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobson/jobson-cli/internal/render"
)

// newSpecsCmd creates the 'specs' command group.
func newSpecsCmd() *cobra.Command {
	specsCmd := &cobra.Command{
		Use:   "specs",
		Short: "Job spec operations (list, show)",
		Long:  `Commands for browsing the job specs a Jobson server offers.`,
	}

	specsCmd.AddCommand(newSpecsListCmd())
	specsCmd.AddCommand(newSpecsShowCmd())

	return specsCmd
}

// newSpecsListCmd creates the 'specs list' command.
func newSpecsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available job specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			specs, err := apiClient.FetchJobSpecSummaries(GetContext(cmd))
			if err != nil {
				return fmt.Errorf("failed to list job specs: %w", err)
			}
			if asJSON {
				return render.JSON(cmd.OutOrStdout(), specs)
			}
			return render.SpecSummaries(cmd.OutOrStdout(), specs)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON")

	return cmd
}

// newSpecsShowCmd creates the 'specs show' command.
func newSpecsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <spec-id>",
		Short: "Show the inputs of a job spec",
		Long: `Show a job spec and the inputs it expects.

Example:
  jobson-cli specs show echo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, _, err := getAPIClient(nil)
			if err != nil {
				return err
			}

			spec, err := apiClient.FetchJobSpec(GetContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("failed to get job spec %s: %w", args[0], err)
			}
			if asJSON {
				return render.JSON(cmd.OutOrStdout(), spec)
			}
			return render.Spec(cmd.OutOrStdout(), *spec)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON")

	return cmd
}
