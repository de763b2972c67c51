package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/web"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI",
	Long: `Serve starts a browser UI with two tabs: upload a paper for analysis or
citation extraction, and explore a research topic then analyze one of the
proposed papers. Stop it with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config: :7860)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc := cfg.Serve
	if cmd.Flags().Changed("addr") {
		sc.Addr, _ = cmd.Flags().GetString("addr")
	}

	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(ctx, completer, cfg.Analysis, nil)
	if err != nil {
		return err
	}

	deps := web.Deps{
		Analyzer: pipeline,
		Citer:    newCiter(completer),
		Load: func(ctx context.Context, path string) (types.Document, error) {
			return loadDocument(ctx, path)
		},
	}

	if sct, err := newScout(completer); err != nil {
		logger.Warn("topic exploration disabled", zap.Error(err))
	} else {
		deps.Explorer = sct
	}
	if f, err := newFetcher(ctx, debugWriter{}); err != nil {
		logger.Warn("URL analysis disabled", zap.Error(err))
	} else {
		deps.Fetch = f.Fetch
	}

	return web.New(deps, sc, logger).ListenAndServe(ctx, sc.Addr)
}

// debugWriter routes fetcher progress lines to the debug log.
type debugWriter struct{}

func (debugWriter) Write(p []byte) (int, error) {
	if line := strings.TrimSpace(string(p)); line != "" {
		logger.Debug(line)
	}
	return len(p), nil
}
