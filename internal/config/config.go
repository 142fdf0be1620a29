// Package config holds typed configuration for every component of the
// reading pipeline, following the teacher's YAML-first, SetDefaults/Validate
// idiom rather than dynamic kwargs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderName identifies a supported LLM vendor.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderGemini    ProviderName = "gemini"
)

// ProviderConfig configures one entry in the orchestrator's priority list.
type ProviderConfig struct {
	Name    ProviderName  `yaml:"name" json:"name"`
	Model   string        `yaml:"model" json:"model"`
	APIKey  string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SetDefaults fills in an API key from the environment and a default
// per-provider timeout when unset. Credentials are never re-read from the
// environment outside of boot/invalidation, per the administrative-settings
// contract in spec.md §6.3.
func (c *ProviderConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Name)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

func apiKeyFromEnv(name ProviderName) string {
	switch name {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// ProvidersConfig is the ordered provider list plus the default attempt
// timeout and retry budget, mirroring spec.md §6.3's administrative-settings
// shape.
type ProvidersConfig struct {
	Priority       []ProviderConfig `yaml:"priority" json:"priority"`
	DefaultTimeout time.Duration    `yaml:"default_timeout,omitempty" json:"default_timeout,omitempty"`
	MaxRetries     int              `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

func (c *ProvidersConfig) SetDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	for i := range c.Priority {
		c.Priority[i].SetDefaults()
	}
}

func (c ProvidersConfig) Validate() error {
	if len(c.Priority) == 0 {
		return fmt.Errorf("config: providers.priority must not be empty")
	}
	return nil
}

// CacheConfig configures the Redis-backed response cache.
type CacheConfig struct {
	Addr     string        `yaml:"addr,omitempty" json:"addr,omitempty"`
	Password string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int           `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	Enabled  bool          `yaml:"enabled" json:"enabled"`
}

func (c *CacheConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = envOr("REDIS_URL", "localhost:6379")
	}
	if c.Prefix == "" {
		c.Prefix = "tarot:ai:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
}

// EmbedderConfig configures the multilingual embedding model.
type EmbedderConfig struct {
	Type       string `yaml:"type,omitempty" json:"type,omitempty"`
	Model      string `yaml:"model,omitempty" json:"model,omitempty"`
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Dimension  int    `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults mirrors hector's EmbedderProviderConfig defaults, but swaps
// the English-only nomic-embed-text model for a multilingual one since
// spec.md §4.6 requires multilingual encoding.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		c.Model = "paraphrase-multilingual-minilm"
	}
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Dimension <= 0 {
		c.Dimension = 384
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// VectorStoreConfig configures the chromem-go backed vector store.
type VectorStoreConfig struct {
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty" json:"compress,omitempty"`
	Collection  string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "tarot_knowledge"
	}
}

// KnowledgeBaseConfig points at the on-disk knowledge base root.
type KnowledgeBaseConfig struct {
	RootDir string `yaml:"root_dir,omitempty" json:"root_dir,omitempty"`
	Watch   bool   `yaml:"watch,omitempty" json:"watch,omitempty"`
}

func (c *KnowledgeBaseConfig) SetDefaults() {
	if c.RootDir == "" {
		c.RootDir = "testdata/knowledge"
	}
}

// RetrieverConfig configures the retriever's LRU cache and worker pool.
type RetrieverConfig struct {
	LRUCacheSize int           `yaml:"lru_cache_size,omitempty" json:"lru_cache_size,omitempty"`
	LRUCacheTTL  time.Duration `yaml:"lru_cache_ttl,omitempty" json:"lru_cache_ttl,omitempty"`
	WorkerPool   int           `yaml:"worker_pool,omitempty" json:"worker_pool,omitempty"`
}

func (c *RetrieverConfig) SetDefaults() {
	if c.LRUCacheSize <= 0 {
		c.LRUCacheSize = 512
	}
	if c.LRUCacheTTL <= 0 {
		c.LRUCacheTTL = 10 * time.Minute
	}
	if c.WorkerPool <= 0 {
		c.WorkerPool = 8
	}
}

// PersistenceBackend selects the document vs relational persistence
// implementation, per spec.md §6.2's "two implementations required".
type PersistenceBackend string

const (
	PersistencePostgres PersistenceBackend = "postgres"
	PersistenceMongo    PersistenceBackend = "mongo"
)

// PersistenceConfig configures the selected persistence backend.
type PersistenceConfig struct {
	Backend    PersistenceBackend `yaml:"backend,omitempty" json:"backend,omitempty"`
	DSN        string             `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Database   string             `yaml:"database,omitempty" json:"database,omitempty"`
}

func (c *PersistenceConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = PersistencePostgres
	}
	if c.DSN == "" {
		c.DSN = envOr("DATABASE_URL", "")
	}
}

// StreamingConfig configures the SSE progressive-delivery layer.
type StreamingConfig struct {
	SemaphoreSize int           `yaml:"semaphore_size,omitempty" json:"semaphore_size,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (c *StreamingConfig) SetDefaults() {
	if c.SemaphoreSize <= 0 {
		c.SemaphoreSize = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
}

// Config aggregates every sub-config. Loaded once at boot (spec.md §6.3);
// administrative mutation happens through the collaborator, which must call
// invalidation hooks rather than have this struct re-read per request.
type Config struct {
	Providers     ProvidersConfig     `yaml:"providers" json:"providers"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Embedder      EmbedderConfig      `yaml:"embedder" json:"embedder"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store" json:"vector_store"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base" json:"knowledge_base"`
	Retriever     RetrieverConfig     `yaml:"retriever" json:"retriever"`
	Persistence   PersistenceConfig   `yaml:"persistence" json:"persistence"`
	Streaming     StreamingConfig     `yaml:"streaming" json:"streaming"`
	LogLevel      string              `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat     string              `yaml:"log_format,omitempty" json:"log_format,omitempty"`
}

// SetDefaults applies defaults to every sub-config.
func (c *Config) SetDefaults() {
	c.Providers.SetDefaults()
	c.Cache.SetDefaults()
	c.Embedder.SetDefaults()
	c.VectorStore.SetDefaults()
	c.KnowledgeBase.SetDefaults()
	c.Retriever.SetDefaults()
	c.Persistence.SetDefaults()
	c.Streaming.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}

// Validate checks cross-cutting invariants not covered by a single
// sub-config's own validation.
func (c Config) Validate() error {
	return c.Providers.Validate()
}

// Load reads path, applies defaults, and validates. This is the only place
// the process reads configuration from disk; per spec.md §6.3 the core
// itself never re-reads it outside of boot or explicit invalidation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
