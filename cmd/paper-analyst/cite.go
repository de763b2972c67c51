package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/citation"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

var citeCmd = &cobra.Command{
	Use:   "cite <file>...",
	Short: "Extract BibTeX citations from papers",
	Long: `Cite sends the opening text of each paper to the model, parses the title,
authors, year, venue and DOI it returns, and prints a BibTeX entry. With
--csl the records are printed as CSL YAML instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCite,
}

func init() {
	citeCmd.Flags().Bool("csl", false, "print CSL YAML instead of BibTeX")
	rootCmd.AddCommand(citeCmd)
}

func runCite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}
	citer := newCiter(completer)
	asCSL, _ := cmd.Flags().GetBool("csl")

	var records []types.BibliographicRecord
	failed := 0
	for _, path := range args {
		doc, err := loadDocument(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed:  %s (%v)\n", path, err)
			failed++
			continue
		}
		rec, err := citer.Extract(ctx, doc.Text)
		if err != nil {
			var ef *citation.ExtractionFailure
			if errors.As(err, &ef) {
				logger.Warn("citation extraction failed", zap.String("file", path), zap.Error(ef.Err))
			}
			fmt.Fprintf(os.Stderr, "failed:  %s (%s)\n", path, citation.FailureMessage)
			failed++
			continue
		}
		if asCSL {
			records = append(records, rec)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), citation.FormatBibTeX(rec))
		fmt.Fprintln(cmd.OutOrStdout())
	}

	if asCSL && len(records) > 0 {
		if err := citation.FormatCSL(records, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	if failed == len(args) {
		return errors.New(citation.FailureMessage)
	}
	return nil
}
