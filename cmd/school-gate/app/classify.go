package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
)

// ClassifyResult is one row of the classify output.
type ClassifyResult struct {
	Path           string `json:"path"`
	Classification string `json:"classification"`
	Gated          bool   `json:"gated"`
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify PATH...",
		Short: "Show how request paths are classified",
		Long: `Classify prints the access tier of each PATH under the effective route
patterns, and whether the path goes through the gate at all (static assets
and framework internals do not).`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	classifier, err := routes.NewClassifier(cfg.PatternSets())
	if err != nil {
		return err
	}

	results := classifyPaths(classifier, args)

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format == "json" {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format results as JSON: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	}

	return writeTable(cmd.OutOrStdout(), results)
}

func classifyPaths(classifier *routes.Classifier, paths []string) []ClassifyResult {
	results := make([]ClassifyResult, 0, len(paths))
	for _, p := range paths {
		results = append(results, ClassifyResult{
			Path:           p,
			Classification: classifier.Classify(p).String(),
			Gated:          routes.ShouldGate(p),
		})
	}
	return results
}

func writeTable(out io.Writer, results []ClassifyResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATH\tCLASSIFICATION\tGATED")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\n", r.Path, r.Classification, r.Gated)
	}
	return w.Flush()
}
