package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-analyst/internal/search"
	"github.com/pdiddy/paper-analyst/internal/secrets"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search academic APIs for candidate papers",
	Long: `Search queries arXiv, Semantic Scholar, and (with a Tavily key) the web for
papers matching the query. The backends run concurrently; results are
deduplicated across sources and kept in backend order. A failing backend is
reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSlice("backend", []string{"arxiv", "semantic_scholar"}, "backends to query: arxiv, semantic_scholar, tavily")
	searchCmd.Flags().Int("max-results", 20, "maximum number of results to return")
	searchCmd.Flags().Int("since", 0, "only Semantic Scholar papers published in or after this year")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("backend")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	since, _ := cmd.Flags().GetInt("since")
	asJSON, _ := cmd.Flags().GetBool("json")

	backends, err := searchBackends(names, maxResults, since)
	if err != nil {
		return err
	}
	m := &search.Multi{Backends: backends, MaxResults: maxResults, Logger: logger}

	out, err := m.Run(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if asJSON {
		return search.FormatJSON(out, cmd.OutOrStdout())
	}
	search.FormatTable(out, cmd.OutOrStdout())
	return nil
}

func searchBackends(names []string, maxResults, since int) ([]search.Searcher, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	var backends []search.Searcher
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "arxiv":
			backends = append(backends, &search.Arxiv{
				Client:     client,
				UserAgent:  cfg.Scout.UserAgent,
				MaxResults: maxResults,
			})
		case "semantic_scholar", "semantic-scholar", "s2":
			backends = append(backends, &search.SemanticScholar{
				Client:     client,
				APIKey:     cfg.Scout.SemanticScholarAPIKey,
				UserAgent:  cfg.Scout.UserAgent,
				MaxResults: maxResults,
				MinYear:    since,
			})
		case "tavily":
			key := cfg.Scout.TavilyAPIKey
			if key == "" {
				k, err := keys.Require(secrets.TavilyAPIKey)
				if err != nil {
					return nil, err
				}
				key = k
			}
			backends = append(backends, search.NewTavily(key, cfg.Scout.SearchDepth, maxResults, client, logger))
		default:
			return nil, fmt.Errorf("unknown search backend %q: use arxiv, semantic_scholar, or tavily", name)
		}
	}
	return backends, nil
}
