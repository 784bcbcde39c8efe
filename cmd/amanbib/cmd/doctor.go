package cmd

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanbib/internal/preflight"
)

// errDoctorFailed is returned when a required check fails.
var errDoctorFailed = errors.New("library check failed")

// doctorReport is the --json output of doctor.
type doctorReport struct {
	Library string                  `json:"library"`
	Status  string                  `json:"status"`
	Checks  []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose problems with a library and its index",
		Long: `Check that the library can be indexed.

Checks:
  - Library file loads
  - Configuration is valid
  - Free space on the index and extraction cache volumes,
    estimated from the number of linked PDFs
  - Open-file limit for the configured extraction workers
  - Write permissions for the index directory
  - Index lock held by another process (warning)
  - Linked PDFs that cannot be found (warning)`,
		Example: `  amanbib doctor --library refs.yaml
  amanbib doctor --verbose
  amanbib doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			abs, err := filepath.Abs(libraryPath)
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), abs, configPath)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorReport{
					Library: abs,
					Status:  checker.SummaryStatus(results),
					Checks:  results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errDoctorFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
