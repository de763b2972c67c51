package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/acquire"
	"github.com/pdiddy/paper-analyst/internal/report"
	"github.com/pdiddy/paper-analyst/internal/scout"
)

var exploreCmd = &cobra.Command{
	Use:   "explore <topic>",
	Short: "Find papers on a research topic",
	Long: `Explore runs the scout agent over web and academic search to propose
recent papers on the topic, printed one PDF URL per line.

With --analyze every proposed paper is downloaded, converted, and analyzed.
A paper that fails to download or analyze is reported and skipped; the
command fails only when every paper fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().Bool("analyze", false, "download and analyze every proposed paper")
	exploreCmd.Flags().String("out-dir", "reports", "directory for per-paper reports with --analyze")
	exploreCmd.Flags().Bool("raw", false, "print the scout's full answer instead of the URL list")
	exploreCmd.Flags().String("papers-dir", "", "base directory for downloaded papers (default from config: papers)")
	addAnalysisFlags(exploreCmd)

	rootCmd.AddCommand(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	topic := strings.Join(args, " ")

	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}
	sc, err := newScout(completer)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "exploring: %s\n", topic)
	raw, err := sc.Run(ctx, topic)
	if err != nil {
		return fmt.Errorf("exploring %q: %w", topic, err)
	}
	urls := scout.Candidates(raw)

	if showRaw, _ := cmd.Flags().GetBool("raw"); showRaw {
		fmt.Fprintln(cmd.OutOrStdout(), raw)
	} else {
		for _, u := range urls {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
	}
	if len(urls) == 0 {
		return fmt.Errorf("the scout proposed no paper URLs for %q", topic)
	}

	if doAnalyze, _ := cmd.Flags().GetBool("analyze"); !doAnalyze {
		return nil
	}
	return analyzeAll(cmd, urls)
}

// analyzeAll downloads every URL, then analyzes each downloaded paper.
// Failures are isolated per paper.
func analyzeAll(cmd *cobra.Command, urls []string) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("papers-dir") {
		cfg.Acquisition.PapersDir, _ = cmd.Flags().GetString("papers-dir")
	}
	outDir, _ := cmd.Flags().GetString("out-dir")

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
	f, err := newFetcher(ctx, os.Stderr)
	if err != nil {
		return err
	}

	batch := acquire.DownloadBatch(ctx, f.client, urls, cfg.Acquisition, os.Stderr)

	sections, _ := cmd.Flags().GetBool("sections")
	analyzed, failed := 0, batch.Failed
	for _, paper := range batch.Papers {
		doc, err := f.Document(ctx, *paper)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed:  %s (%v)\n", paper.ID, err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stderr, "analyzing %s\n", doc.Name)
		result, err := pipeline.Run(ctx, doc)
		if err != nil {
			logger.Error("analysis failed", zap.String("paper", paper.ID), zap.Error(err))
			fmt.Fprintf(os.Stderr, "failed:  %s (%v)\n", paper.ID, err)
			failed++
			continue
		}
		out := filepath.Join(outDir, paper.ID+".md")
		if err := report.Write(out, report.FormatMarkdown, result, report.Options{Sections: sections}); err != nil {
			fmt.Fprintf(os.Stderr, "failed:  %s (%v)\n", paper.ID, err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stderr, "analyzed: %s -> %s\n", paper.ID, out)
		analyzed++
	}

	fmt.Fprintf(os.Stderr, "\nExplore summary: %d analyzed, %d failed (total: %d)\n", analyzed, failed, len(urls))
	if analyzed == 0 {
		return fmt.Errorf("all %d paper(s) failed", len(urls))
	}
	return nil
}
