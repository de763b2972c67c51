package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/citation"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/report"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a PDF, Markdown, or text paper",
	Long: `Analyze builds a knowledge base from the paper, runs the specialist agents
(methodology, results, citations, future work) in parallel, and synthesizes
their findings into a single report.

With --mode single, one comprehensive prompt over retrieved passages replaces
the agent team.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addAnalysisFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// addAnalysisFlags registers the flags shared by analyze and analyze-url.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "analysis mode: agents or single (default from config: agents)")
	cmd.Flags().StringP("out", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().String("format", "", "report format: markdown, yaml, or json (default from --out extension)")
	cmd.Flags().Bool("cite", false, "also extract a BibTeX citation")
	cmd.Flags().Bool("sections", false, "append each specialist's report after the synthesis")
	cmd.Flags().Int("max-concurrency", 0, "cap on concurrently running specialists (default: one per role)")
	cmd.Flags().Duration("timeout", 0, "deadline for the whole run (default from config: 10m)")
}

// analysisConfig applies command flags over the loaded config.
func analysisConfig(cmd *cobra.Command) (types.AnalysisConfig, error) {
	ac := cfg.Analysis
	if cmd.Flags().Changed("mode") {
		mode, _ := cmd.Flags().GetString("mode")
		switch types.AnalysisMode(mode) {
		case types.ModeAgents, types.ModeSingle:
			ac.Mode = types.AnalysisMode(mode)
		default:
			return ac, fmt.Errorf("--mode %q: use agents or single", mode)
		}
	}
	if cmd.Flags().Changed("max-concurrency") {
		ac.MaxConcurrency, _ = cmd.Flags().GetInt("max-concurrency")
	}
	if cmd.Flags().Changed("timeout") {
		ac.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	return ac, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := loadDocument(ctx, args[0])
	if err != nil {
		return err
	}
	return analyzeAndWrite(cmd, doc)
}

// analyzeAndWrite runs the pipeline on doc and renders the result as the
// command's flags request.
func analyzeAndWrite(cmd *cobra.Command, doc types.Document) error {
	ctx := cmd.Context()
	ac, err := analysisConfig(cmd)
	if err != nil {
		return err
	}
	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(ctx, completer, ac, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "analyzing %s (%s mode)\n", doc.Name, ac.Mode)
	result, err := pipeline.Run(ctx, doc)
	if err != nil {
		return err
	}
	if n := failedSections(result); n > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d specialist(s) failed; their sections are marked in the report\n", n)
	}

	if cite, _ := cmd.Flags().GetBool("cite"); cite {
		result.Citation = extractCitation(ctx, completer, doc)
	}
	return writeReport(cmd, result)
}

func failedSections(result *types.AnalysisResult) int {
	n := 0
	for _, s := range result.Sections {
		if s.Failed {
			n++
		}
	}
	return n
}

// extractCitation returns nil when extraction fails; the failure is
// reported on stderr and does not affect the analysis.
func extractCitation(ctx context.Context, completer llm.Completer, doc types.Document) *types.BibliographicRecord {
	rec, err := newCiter(completer).Extract(ctx, doc.Text)
	if err != nil {
		var ef *citation.ExtractionFailure
		if errors.As(err, &ef) {
			logger.Warn("citation extraction failed", zap.Error(ef.Err))
		}
		fmt.Fprintln(os.Stderr, citation.FailureMessage)
		return nil
	}
	return &rec
}

func writeReport(cmd *cobra.Command, result *types.AnalysisResult) error {
	out, _ := cmd.Flags().GetString("out")
	formatName, _ := cmd.Flags().GetString("format")
	sections, _ := cmd.Flags().GetBool("sections")
	opts := report.Options{Sections: sections}

	format := report.FormatFromPath(out)
	if formatName != "" {
		f, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		format = f
	}

	if out == "" || out == "-" {
		return report.Render(cmd.OutOrStdout(), format, result, opts)
	}
	if err := report.Write(out, format, result, opts); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "report written to %s (%s, %s)\n", out, format, result.Duration.Round(time.Millisecond))
	return nil
}
