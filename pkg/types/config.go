package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-analyst/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// Provider names accepted by LLMConfig.Provider and EmbeddingConfig.Provider.
const (
	ProviderMistral   = "mistral"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// LLMConfig holds settings for the completion model shared by agents and synthesis.
type LLMConfig struct {
	// Provider selects the completion backend: mistral, anthropic, or gemini.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "mistral-small-latest").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key. Usually supplied through .secrets/ or the environment.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (self-hosted gateways, tests).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens caps the length of each completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout bounds a single completion request (default 240s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// EmbeddingConfig holds settings for the embedding model used by the knowledge base.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: mistral, gemini, or none.
	// With none the knowledge base falls back to lexical (FTS5) retrieval.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the embedding model identifier (e.g. "mistral-embed").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// BatchSize is the number of chunks sent per embedding request (default 32).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// KnowledgeBaseConfig holds settings for the per-document knowledge base.
type KnowledgeBaseConfig struct {
	// ChunkSize is the maximum chunk length in characters (default 1024).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`

	// ChunkOverlap is the number of characters shared by adjacent chunks (default 128).
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap" mapstructure:"chunk_overlap"`

	// TopK is the number of passages returned per retrieval (default 3).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`
}

// AgentConfig holds settings for the reasoning loop shared by all agents.
type AgentConfig struct {
	// MaxToolCalls bounds tool invocations per agent run (default 5).
	MaxToolCalls int `json:"max_tool_calls" yaml:"max_tool_calls" mapstructure:"max_tool_calls"`

	// Verbose logs every prompt and model reply at debug level.
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
}

// AnalysisMode selects how a paper is analyzed.
type AnalysisMode string

const (
	// ModeAgents runs the specialist roster followed by synthesis.
	ModeAgents AnalysisMode = "agents"
	// ModeSingle runs one comprehensive query against the knowledge base.
	ModeSingle AnalysisMode = "single"
)

// AnalysisConfig holds settings for the analysis pipeline.
type AnalysisConfig struct {
	Mode AnalysisMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// MaxConcurrency caps the specialist pool. Zero means one worker per role.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// Timeout is the deadline for a whole pipeline run (default 10m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ScoutConfig holds settings for topic exploration.
type ScoutConfig struct {
	// TavilyAPIKey authenticates the web search backend.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty" mapstructure:"tavily_api_key"`

	// SearchDepth is Tavily's depth parameter: basic or advanced.
	SearchDepth string `json:"search_depth" yaml:"search_depth" mapstructure:"search_depth"`

	// EnableArxiv adds the arXiv search tool next to web search.
	EnableArxiv bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`

	// EnableSemanticScholar adds the Semantic Scholar search tool.
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar" mapstructure:"enable_semantic_scholar"`

	// SemanticScholarAPIKey is optional; unauthenticated requests are rate limited.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// UserAgent is sent with academic API requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxResults is the number of results requested per search call (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// AcquisitionConfig holds settings for downloading papers.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// DownloadDelay is the delay between consecutive downloads in a batch.
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay" mapstructure:"download_delay"`

	// PapersDir is the base directory for papers (contains raw/, metadata/).
	PapersDir string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`
}

// ConversionBackend identifies the PDF text extraction tool.
type ConversionBackend string

const (
	BackendPdftotext  ConversionBackend = "pdftotext"
	BackendMarkitdown ConversionBackend = "markitdown"
)

// ConversionConfig holds settings for PDF text extraction.
type ConversionConfig struct {
	// Backend selects the conversion tool: pdftotext or markitdown.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Image is the markitdown container image (default "markitdown:latest").
	Image string `json:"image,omitempty" yaml:"image,omitempty" mapstructure:"image"`
}

// ServeConfig holds settings for the web UI.
type ServeConfig struct {
	// Addr is the listen address (default ":7860").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// MaxUploadBytes caps uploaded file size (default 32 MiB).
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// Config groups all component configurations. Each pipeline run receives its
// own copy; nothing here is process-wide mutable state.
type Config struct {
	LLM         LLMConfig           `json:"llm" yaml:"llm" mapstructure:"llm"`
	Embedding   EmbeddingConfig     `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Knowledge   KnowledgeBaseConfig `json:"knowledge" yaml:"knowledge" mapstructure:"knowledge"`
	Agent       AgentConfig         `json:"agent" yaml:"agent" mapstructure:"agent"`
	Analysis    AnalysisConfig      `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Scout       ScoutConfig         `json:"scout" yaml:"scout" mapstructure:"scout"`
	Acquisition AcquisitionConfig   `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	Conversion  ConversionConfig    `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Serve       ServeConfig         `json:"serve" yaml:"serve" mapstructure:"serve"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:   ProviderMistral,
			Model:      "mistral-small-latest",
			MaxTokens:  4096,
			Timeout:    240 * time.Second,
			MaxRetries: 5,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderMistral,
			Model:     "mistral-embed",
			BatchSize: 32,
			Timeout:   60 * time.Second,
		},
		Knowledge: KnowledgeBaseConfig{
			ChunkSize:    1024,
			ChunkOverlap: 128,
			TopK:         3,
		},
		Agent: AgentConfig{
			MaxToolCalls: 5,
		},
		Analysis: AnalysisConfig{
			Mode:    ModeAgents,
			Timeout: 10 * time.Minute,
		},
		Scout: ScoutConfig{
			SearchDepth: "basic",
			EnableArxiv: true,
			MaxResults:  5,
			UserAgent:   "paper-analyst/0.1",
		},
		Acquisition: AcquisitionConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   20 * time.Second,
				UserAgent: "paper-analyst/0.1",
			},
			DownloadDelay: time.Second,
			PapersDir:     "papers",
		},
		Conversion: ConversionConfig{
			Backend: BackendPdftotext,
			Image:   "markitdown:latest",
		},
		Serve: ServeConfig{
			Addr:           ":7860",
			MaxUploadBytes: 32 << 20,
		},
	}
}
