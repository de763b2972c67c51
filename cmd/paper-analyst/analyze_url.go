package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-analyst/internal/acquire"
)

var analyzeURLCmd = &cobra.Command{
	Use:   "analyze-url <url|arxiv-id|doi>",
	Short: "Download a paper and analyze it",
	Long: `Analyze-url downloads the paper (arXiv abstract links are rewritten to PDF
links, DOIs prefer an open-access copy), converts it to text, and runs the
same analysis as analyze. Downloads are cached under the papers directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyzeURL,
}

func init() {
	addAnalysisFlags(analyzeURLCmd)
	rootCmd.AddCommand(analyzeURLCmd)
}

func runAnalyzeURL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if idType, _ := acquire.Classify(args[0]); idType == acquire.TypeUnknown {
		return fmt.Errorf("unrecognized paper identifier %q: use an http(s) URL, arXiv ID, or DOI", args[0])
	}
	f, err := newFetcher(ctx, os.Stderr)
	if err != nil {
		return err
	}
	doc, err := f.Fetch(ctx, args[0])
	if err != nil {
		return err
	}
	return analyzeAndWrite(cmd, doc)
}
