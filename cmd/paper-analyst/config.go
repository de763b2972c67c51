package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

// setDefaults registers every config key with its default so that
// AutomaticEnv can override keys that appear in no config file.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("knowledge.chunk_size", d.Knowledge.ChunkSize)
	v.SetDefault("knowledge.chunk_overlap", d.Knowledge.ChunkOverlap)
	v.SetDefault("knowledge.top_k", d.Knowledge.TopK)

	v.SetDefault("agent.max_tool_calls", d.Agent.MaxToolCalls)
	v.SetDefault("agent.verbose", d.Agent.Verbose)

	v.SetDefault("analysis.mode", string(d.Analysis.Mode))
	v.SetDefault("analysis.max_concurrency", d.Analysis.MaxConcurrency)
	v.SetDefault("analysis.timeout", d.Analysis.Timeout)

	v.SetDefault("scout.tavily_api_key", d.Scout.TavilyAPIKey)
	v.SetDefault("scout.search_depth", d.Scout.SearchDepth)
	v.SetDefault("scout.enable_arxiv", d.Scout.EnableArxiv)
	v.SetDefault("scout.enable_semantic_scholar", d.Scout.EnableSemanticScholar)
	v.SetDefault("scout.semantic_scholar_api_key", d.Scout.SemanticScholarAPIKey)
	v.SetDefault("scout.user_agent", d.Scout.UserAgent)
	v.SetDefault("scout.max_results", d.Scout.MaxResults)

	v.SetDefault("acquisition.timeout", d.Acquisition.Timeout)
	v.SetDefault("acquisition.user_agent", d.Acquisition.UserAgent)
	v.SetDefault("acquisition.download_delay", d.Acquisition.DownloadDelay)
	v.SetDefault("acquisition.papers_dir", d.Acquisition.PapersDir)

	v.SetDefault("conversion.backend", string(d.Conversion.Backend))
	v.SetDefault("conversion.image", d.Conversion.Image)

	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.max_upload_bytes", d.Serve.MaxUploadBytes)
}

// loadConfig decodes v over the defaults and validates the enumerations.
func loadConfig(v *viper.Viper) (types.Config, error) {
	c := types.DefaultConfig()
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	switch c.Analysis.Mode {
	case types.ModeAgents, types.ModeSingle:
	default:
		return types.Config{}, fmt.Errorf("analysis.mode %q: use agents or single", c.Analysis.Mode)
	}
	switch c.Conversion.Backend {
	case types.BackendPdftotext, types.BackendMarkitdown:
	default:
		return types.Config{}, fmt.Errorf("conversion.backend %q: use pdftotext or markitdown", c.Conversion.Backend)
	}
	return c, nil
}
