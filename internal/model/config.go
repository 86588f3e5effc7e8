package model

import (
	"fmt"
	"time"
)

// Config holds all factlens settings. Field tags serve both the YAML config
// file (config init/show) and viper unmarshalling.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Verdict   VerdictConfig   `yaml:"verdict" mapstructure:"verdict"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Vector    VectorConfig    `yaml:"vector" mapstructure:"vector"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// PipelineConfig controls one verification run
type PipelineConfig struct {
	// Timeout is the hard deadline for a whole verification.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RetryAttempts is the total number of attempts per retried stage.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`

	// RetryBaseDelay is the wait before the second attempt; it doubles after that.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`

	TopK        int  `yaml:"top_k" mapstructure:"top_k"`
	UseCache    bool `yaml:"use_cache" mapstructure:"use_cache"`
	StoreResult bool `yaml:"store_result" mapstructure:"store_result"`
}

// SearchConfig tunes hybrid retrieval
type SearchConfig struct {
	VectorWeight        float64 `yaml:"vector_weight" mapstructure:"vector_weight"`
	KeywordWeight       float64 `yaml:"keyword_weight" mapstructure:"keyword_weight"`
	RRFK                float64 `yaml:"rrf_k" mapstructure:"rrf_k"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" mapstructure:"candidate_multiplier"`
	MinVectorSimilarity float64 `yaml:"min_vector_similarity" mapstructure:"min_vector_similarity"`
}

// VerdictConfig holds aggregation thresholds
type VerdictConfig struct {
	SupportThreshold float64 `yaml:"support_threshold" mapstructure:"support_threshold"`
	RefuteThreshold  float64 `yaml:"refute_threshold" mapstructure:"refute_threshold"`
	TieTolerance     float64 `yaml:"tie_tolerance" mapstructure:"tie_tolerance"`
	KeywordWeight    float64 `yaml:"keyword_weight" mapstructure:"keyword_weight"` // Weight for evidence without a vector similarity
}

// InferenceConfig controls NLI dispatch
type InferenceConfig struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CacheConfig selects and tunes the result cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend string        `yaml:"backend" mapstructure:"backend"` // memory, disk, redis, layered
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`

	// CleanupInterval is how often the in-memory layer sweeps expired entries.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// ProvidersConfig configures the model providers
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding" mapstructure:"embedding"`
	NLI       ProviderConfig `yaml:"nli" mapstructure:"nli"`

	// CallTimeout bounds each individual provider, index and store call. It
	// must be shorter than the pipeline timeout.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// ProviderConfig configures one model provider
type ProviderConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, service
	Model             string  `yaml:"model" mapstructure:"model"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	HTTPProxy         string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// StorageConfig selects the evidence catalog and result store
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// VectorConfig selects the vector index backend
type VectorConfig struct {
	Backend        string `yaml:"backend" mapstructure:"backend"` // sqlite, weaviate
	WeaviateHost   string `yaml:"weaviate_host" mapstructure:"weaviate_host"`
	WeaviateScheme string `yaml:"weaviate_scheme" mapstructure:"weaviate_scheme"`
	WeaviateClass  string `yaml:"weaviate_class" mapstructure:"weaviate_class"`
}

// IngestConfig controls evidence fetching and passage splitting
type IngestConfig struct {
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	PassageChars  int           `yaml:"passage_chars" mapstructure:"passage_chars"`
	EmbedBatch    int           `yaml:"embed_batch" mapstructure:"embed_batch"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			Timeout:        60 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
			TopK:           10,
			UseCache:       true,
			StoreResult:    true,
		},
		Search: SearchConfig{
			VectorWeight:        1.0,
			KeywordWeight:       1.0,
			RRFK:                60,
			CandidateMultiplier: 3,
		},
		Verdict: VerdictConfig{
			SupportThreshold: 0.6,
			RefuteThreshold:  0.6,
			TieTolerance:     1e-9,
			KeywordWeight:    1.0,
		},
		Inference: InferenceConfig{
			BatchSize:   8,
			Concurrency: 2,
		},
		Cache: CacheConfig{
			Enabled:         true,
			Backend:         "memory",
			TTL:             time.Hour,
			Dir:             ".factlens/cache",
			CleanupInterval: 10 * time.Minute,
			RedisAddr:       "localhost:6379",
		},
		Providers: ProvidersConfig{
			Embedding: ProviderConfig{
				Provider:          "openai",
				Model:             "text-embedding-3-small",
				RequestsPerSecond: 5,
				Burst:             5,
			},
			NLI: ProviderConfig{
				Provider:          "openai",
				Model:             "gpt-4o-mini",
				RequestsPerSecond: 5,
				Burst:             5,
			},
			CallTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    ".factlens/factlens.db",
		},
		Vector: VectorConfig{
			Backend:        "sqlite",
			WeaviateHost:   "localhost:8080",
			WeaviateScheme: "http",
			WeaviateClass:  "Evidence",
		},
		Ingest: IngestConfig{
			UserAgent:     "factlens/0.1 (+https://github.com/ppiankov/factlens)",
			Timeout:       15 * time.Second,
			MaxBodyBytes:  5 << 20,
			RespectRobots: true,
			PassageChars:  800,
			EmbedBatch:    32,
		},
		Server: ServerConfig{
			Addr: ":8088",
		},
	}
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive")
	}
	if c.Providers.CallTimeout <= 0 || c.Providers.CallTimeout >= c.Pipeline.Timeout {
		return fmt.Errorf("providers.call_timeout (%s) must be positive and shorter than pipeline.timeout (%s)",
			c.Providers.CallTimeout, c.Pipeline.Timeout)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("pipeline.retry_attempts must be at least 1")
	}
	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.top_k must be at least 1")
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		return fmt.Errorf("search.vector_weight and search.keyword_weight cannot both be zero")
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive")
	}
	if c.Inference.BatchSize < 1 {
		return fmt.Errorf("inference.batch_size must be at least 1")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage.driver %q (supported: sqlite, postgres)", c.Storage.Driver)
	}
	switch c.Vector.Backend {
	case "sqlite", "weaviate":
	default:
		return fmt.Errorf("unknown vector.backend %q (supported: sqlite, weaviate)", c.Vector.Backend)
	}
	if c.Vector.Backend == "sqlite" && c.Storage.Driver != "sqlite" {
		return fmt.Errorf("vector.backend sqlite requires storage.driver sqlite")
	}
	return nil
}
