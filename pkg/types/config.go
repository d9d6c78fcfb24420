package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "scholarqa/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SemanticBackend selects the passage search implementation.
type SemanticBackend string

const (
	SemanticS2     SemanticBackend = "s2"
	SemanticQdrant SemanticBackend = "qdrant"
)

// RetrievalConfig holds settings for the search fan-out.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// TaskLimit is the number of results each search task requests (default 50).
	TaskLimit int `json:"task_limit" yaml:"task_limit" mapstructure:"task_limit"`

	// TaskTimeout bounds each search task. Tasks past the bound are abandoned.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout" mapstructure:"task_timeout"`

	// MinPassageWords drops snippet passages with this many words or fewer (default 20).
	MinPassageWords int `json:"min_passage_words" yaml:"min_passage_words" mapstructure:"min_passage_words"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// RequestsPerSecond throttles Semantic Scholar calls (default 1).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Semantic selects the passage backend: s2 or qdrant.
	Semantic SemanticBackend `json:"semantic" yaml:"semantic" mapstructure:"semantic"`

	// QdrantAddr is the gRPC address of the Qdrant passage index.
	QdrantAddr string `json:"qdrant_addr,omitempty" yaml:"qdrant_addr,omitempty" mapstructure:"qdrant_addr"`

	// QdrantCollection is the passage collection name.
	QdrantCollection string `json:"qdrant_collection,omitempty" yaml:"qdrant_collection,omitempty" mapstructure:"qdrant_collection"`

	// EmbeddingHost is the OpenAI-compatible endpoint used to embed queries
	// for Qdrant.
	EmbeddingHost string `json:"embedding_host,omitempty" yaml:"embedding_host,omitempty" mapstructure:"embedding_host"`

	// EmbeddingModel is the query embedding model.
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty" mapstructure:"embedding_model"`

	EmbeddingAPIKey string `json:"embedding_api_key,omitempty" yaml:"embedding_api_key,omitempty" mapstructure:"embedding_api_key"`
}

// RerankConfig holds settings for the cross-encoder stage.
type RerankConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the rerank service URL (POST {query, texts}).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Model is passed to the service when it hosts several models.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Depth is the number of candidates kept after reranking: 0 skips the
	// reranker, negative keeps all.
	Depth int `json:"depth" yaml:"depth" mapstructure:"depth"`

	// BatchSize is the number of candidates sent per reranker call (default 64).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// AlignmentConfig holds the fuzzy quote alignment thresholds.
type AlignmentConfig struct {
	// Threshold is the minimum window similarity (default 0.75).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// MinContentRecall is the minimum share of the quote's content words
	// found in the window (default 0.6).
	MinContentRecall float64 `json:"min_content_recall" yaml:"min_content_recall" mapstructure:"min_content_recall"`

	// WindowSlack widens windows to quote length ± slack tokens (default 2).
	WindowSlack int `json:"window_slack" yaml:"window_slack" mapstructure:"window_slack"`
}

// AIProvider selects the text completion backend.
type AIProvider string

const (
	ProviderAnthropic AIProvider = "anthropic"
	ProviderOpenAI    AIProvider = "openai"
)

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	Provider AIProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the endpoint of OpenAI-compatible providers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens bounds each completion (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// InputPricePerMTok and OutputPricePerMTok price usage in USD per
	// million tokens.
	InputPricePerMTok  float64 `json:"input_price_per_mtok" yaml:"input_price_per_mtok" mapstructure:"input_price_per_mtok"`
	OutputPricePerMTok float64 `json:"output_price_per_mtok" yaml:"output_price_per_mtok" mapstructure:"output_price_per_mtok"`
}

// GenerationConfig holds settings for quote extraction, section generation,
// and table synthesis.
type GenerationConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// MaxQuoteDocs is the number of top documents sent to quote extraction (default 30).
	MaxQuoteDocs int `json:"max_quote_docs" yaml:"max_quote_docs" mapstructure:"max_quote_docs"`

	// QuoteWorkers bounds concurrent quote extraction calls (default 8).
	QuoteWorkers int `json:"quote_workers" yaml:"quote_workers" mapstructure:"quote_workers"`

	// SectionWorkers bounds concurrent section generation calls (default 6).
	SectionWorkers int `json:"section_workers" yaml:"section_workers" mapstructure:"section_workers"`

	// TablesEnabled turns on comparison tables for list sections.
	TablesEnabled bool `json:"tables_enabled" yaml:"tables_enabled" mapstructure:"tables_enabled"`

	// TableWorkers is the size of the background table pool (default 4).
	TableWorkers int `json:"table_workers" yaml:"table_workers" mapstructure:"table_workers"`

	// TableTimeout bounds the join of all table jobs (default 2m).
	TableTimeout time.Duration `json:"table_timeout" yaml:"table_timeout" mapstructure:"table_timeout"`

	// MaxTableColumns and MaxTableRows cap table size (default 6 each).
	MaxTableColumns int `json:"max_table_columns" yaml:"max_table_columns" mapstructure:"max_table_columns"`
	MaxTableRows    int `json:"max_table_rows" yaml:"max_table_rows" mapstructure:"max_table_rows"`
}

// MetadataCacheKind selects the persistent paper metadata cache.
type MetadataCacheKind string

const (
	CacheNone   MetadataCacheKind = "none"
	CacheSQLite MetadataCacheKind = "sqlite"
	CacheRedis  MetadataCacheKind = "redis"
)

// MetadataConfig holds settings for citation metadata resolution.
type MetadataConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	Cache MetadataCacheKind `json:"cache" yaml:"cache" mapstructure:"cache"`

	// RedisAddr is the address of the Redis cache (e.g. "localhost:6379").
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// CacheTTL is how long cached metadata stays valid (default 7 days).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// StoreConfig holds settings for the local SQLite store.
type StoreConfig struct {
	// Dir is the directory that holds scholarqa.db (default "data").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Rerank     RerankConfig     `json:"rerank" yaml:"rerank" mapstructure:"rerank"`
	Alignment  AlignmentConfig  `json:"alignment" yaml:"alignment" mapstructure:"alignment"`
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Metadata   MetadataConfig   `json:"metadata" yaml:"metadata" mapstructure:"metadata"`
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
}

// DefaultPipelineConfig returns the configuration used when no file or flag
// overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	httpCfg := HTTPConfig{Timeout: 60 * time.Second, UserAgent: "scholarqa/0.1"}
	return PipelineConfig{
		Retrieval: RetrievalConfig{
			HTTPConfig:        httpCfg,
			TaskLimit:         50,
			TaskTimeout:       45 * time.Second,
			MinPassageWords:   20,
			RequestsPerSecond: 1,
			Semantic:          SemanticS2,
		},
		Rerank: RerankConfig{
			HTTPConfig: httpCfg,
			Depth:      -1,
			BatchSize:  64,
		},
		Alignment: DefaultAlignmentConfig(),
		Generation: GenerationConfig{
			AIConfig: AIConfig{
				Provider:   ProviderAnthropic,
				Model:      "claude-sonnet-4-5-20250929",
				MaxTokens:  4096,
				MaxRetries: 3,
			},
			MaxQuoteDocs:    30,
			QuoteWorkers:    8,
			SectionWorkers:  6,
			TablesEnabled:   true,
			TableWorkers:    4,
			TableTimeout:    2 * time.Minute,
			MaxTableColumns: 6,
			MaxTableRows:    6,
		},
		Metadata: MetadataConfig{
			HTTPConfig: httpCfg,
			Cache:      CacheSQLite,
			CacheTTL:   7 * 24 * time.Hour,
		},
		Store: StoreConfig{Dir: "data"},
	}
}

// DefaultAlignmentConfig returns the fuzzy alignment thresholds.
func DefaultAlignmentConfig() AlignmentConfig {
	return AlignmentConfig{
		Threshold:        0.75,
		MinContentRecall: 0.6,
		WindowSlack:      2,
	}
}
