package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/envault/envault/pkg/overlay"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration files without resolving secrets",
		Long: `Parse the overlay file set and report syntax errors and cross-file
conflicts. No providers are contacted and no command is run, so
validate is safe for CI and pre-commit hooks. Conflicts are keys
assigned divergently across three or more files; they are warnings
unless --strict is set.`,
		Example: `  # Check the default file set
  envault validate

  # Check the production overlay stack, conflicts fatal
  envault validate --profile production --overlay region --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger()
			if err != nil {
				return err
			}

			files, paths, err := parseFiles(logger)
			if err != nil {
				return err
			}
			conflicts := overlay.DetectConflicts(files)

			if jsonOutput {
				return validateJSON(paths, conflicts)
			}

			for _, p := range paths {
				fmt.Printf("ok: %s\n", p)
			}
			keys := make([]string, 0, len(conflicts))
			for k := range conflicts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("conflict: %s assigned divergently in %s\n", k, strings.Join(conflicts[k], ", "))
			}
			if strict && len(conflicts) > 0 {
				return fmt.Errorf("strict mode: %d conflicting key(s)", len(conflicts))
			}
			return nil
		},
	}

	return cmd
}

func validateJSON(paths []string, conflicts map[string][]string) error {
	type report struct {
		Files     []string            `json:"files"`
		Conflicts map[string][]string `json:"conflicts,omitempty"`
		Valid     bool                `json:"valid"`
	}
	r := report{Files: paths, Conflicts: conflicts, Valid: !strict || len(conflicts) == 0}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err
	}
	if !r.Valid {
		return fmt.Errorf("strict mode: %d conflicting key(s)", len(conflicts))
	}
	return nil
}
