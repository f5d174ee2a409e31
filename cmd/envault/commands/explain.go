package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/envault/envault/pkg/eval"
)

func newExplainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain [key...]",
		Short: "Show where each resolved key came from",
		Long: `Resolve the configured environment and report per-key provenance:
the file that produced the final value, the provider it was fetched
from, and the pipes applied. Values of provider-derived and protected
keys are masked. With key arguments, only those keys are reported.`,
		Example: `  # Provenance for every managed key
  envault explain

  # A single key, as JSON
  envault explain DATABASE_URL --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger()
			if err != nil {
				return err
			}

			res, _, cleanup, err := evaluate(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer cleanup()

			keys := make([]string, 0, len(res.Metadata))
			if len(args) > 0 {
				for _, k := range args {
					if _, ok := res.Metadata[k]; !ok {
						return fmt.Errorf("key %s was not produced by the configuration", k)
					}
					keys = append(keys, k)
				}
			} else {
				for k := range res.Metadata {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)

			if jsonOutput {
				return explainJSON(keys, res)
			}
			return explainText(keys, res)
		},
	}

	return cmd
}

type keyReport struct {
	Key       string   `json:"key"`
	Value     string   `json:"value"`
	Source    string   `json:"source"`
	Provider  string   `json:"provider,omitempty"`
	Pipes     []string `json:"pipes,omitempty"`
	Protected bool     `json:"protected"`
}

func buildReport(key string, meta eval.KeyMetadata) keyReport {
	value := meta.Value
	if meta.Provider != "" || meta.Protected {
		value = "********"
	}
	return keyReport{
		Key:       key,
		Value:     value,
		Source:    meta.SourceFile,
		Provider:  meta.Provider,
		Pipes:     meta.Pipes,
		Protected: meta.Protected,
	}
}

func explainJSON(keys []string, res *eval.Result) error {
	type report struct {
		Keys     []keyReport `json:"keys"`
		Warnings []string    `json:"warnings,omitempty"`
		Errors   []string    `json:"errors,omitempty"`
	}
	r := report{Warnings: res.Warnings}
	for _, k := range keys {
		r.Keys = append(r.Keys, buildReport(k, res.Metadata[k]))
	}
	for _, err := range res.Errors {
		r.Errors = append(r.Errors, err.Error())
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func explainText(keys []string, res *eval.Result) error {
	for _, k := range keys {
		r := buildReport(k, res.Metadata[k])
		fmt.Printf("%s=%s\n", r.Key, r.Value)
		fmt.Printf("  source: %s\n", r.Source)
		if r.Provider != "" {
			fmt.Printf("  provider: %s\n", r.Provider)
		}
		if len(r.Pipes) > 0 {
			fmt.Printf("  pipes: %s\n", strings.Join(r.Pipes, " | "))
		}
		if r.Protected {
			fmt.Println("  protected: true")
		}
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, err := range res.Errors {
		fmt.Printf("error: %v\n", err)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d key(s) failed to resolve", len(res.Errors))
	}
	return nil
}
