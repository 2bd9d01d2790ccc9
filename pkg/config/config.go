package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Admin     AdminConfig
	Notion    NotionConfig
	Knowledge KnowledgeConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Indexing  IndexingConfig
	Search    SearchConfig
	SQLite    SQLiteConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	AllowedOrigins     []string
	IsDevelopment      bool
	RateLimitPerMinute int
	MaxQueryLength     int
}

type AdminConfig struct {
	Password string
}

type NotionConfig struct {
	Token             string
	BaseURL           string
	Version           string
	TimeoutSec        int
	RequestsPerSecond float64
	Databases         NotionDatabases
}

type NotionDatabases struct {
	Knowledge string
	Missions  string
	Expertise string
	FAQs      string
}

type KnowledgeConfig struct {
	Title string
}

type EmbeddingConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Dimension         int
	TimeoutSec        int
	RequestsPerSecond float64
}

type VectorConfig struct {
	Provider string
	Milvus   MilvusConfig
	Qdrant   QdrantConfig
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
}

type QdrantConfig struct {
	URL            string
	APIKey         string
	CollectionName string
}

type CacheConfig struct {
	Backend    string
	TTLMinutes int
	MaxEntries int
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type IndexingConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	UpsertBatchSize  int
	PartialFailure   string
	ChunkIDs         string
	PruneOrphans     bool
	TimeoutSec       int
}

func (c IndexingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type SearchConfig struct {
	DefaultTopK int
	MaxTopK     int
}

type SQLiteConfig struct {
	Path string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// NotionConfigured reports whether the content source has what it needs to run.
// An unconfigured source makes indexing fall back to the static knowledge base.
func (c *Config) NotionConfigured() bool {
	return c.Notion.Token != "" && c.Notion.Databases.Knowledge != ""
}

func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom reads configuration into v. When file is empty the default search
// paths are used and a missing config file is not an error.
func LoadFrom(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/aia")
	}

	v.SetEnvPrefix("AIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Indexing.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.chunkSize must be > 0, got %d", c.Indexing.ChunkSize))
	}
	if c.Indexing.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("indexing.chunkOverlap must be >= 0, got %d", c.Indexing.ChunkOverlap))
	}
	if c.Indexing.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.embedBatchSize must be > 0, got %d", c.Indexing.EmbedBatchSize))
	}
	if c.Indexing.EmbedConcurrency < 0 {
		errs = append(errs, fmt.Errorf("indexing.embedConcurrency must be >= 0, got %d", c.Indexing.EmbedConcurrency))
	}
	if c.Indexing.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.upsertBatchSize must be > 0, got %d", c.Indexing.UpsertBatchSize))
	}
	if !oneOf(c.Indexing.PartialFailure, "fail", "allow") {
		errs = append(errs, fmt.Errorf("indexing.partialFailure must be fail or allow, got %q", c.Indexing.PartialFailure))
	}
	if !oneOf(c.Indexing.ChunkIDs, "sequential", "content") {
		errs = append(errs, fmt.Errorf("indexing.chunkIds must be sequential or content, got %q", c.Indexing.ChunkIDs))
	}
	if !oneOf(c.Vector.Provider, "milvus", "qdrant", "memory") {
		errs = append(errs, fmt.Errorf("vector.provider must be milvus, qdrant or memory, got %q", c.Vector.Provider))
	}
	if !oneOf(c.Cache.Backend, "memory", "lru", "redis") {
		errs = append(errs, fmt.Errorf("cache.backend must be memory, lru or redis, got %q", c.Cache.Backend))
	}
	if c.Cache.TTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttlMinutes must be > 0, got %d", c.Cache.TTLMinutes))
	}
	if c.Cache.Backend == "lru" && c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache.maxEntries must be > 0 for the lru backend"))
	}
	if c.Search.DefaultTopK < 1 || c.Search.MaxTopK < c.Search.DefaultTopK {
		errs = append(errs, fmt.Errorf("search.defaultTopK must be >= 1 and <= search.maxTopK, got %d/%d",
			c.Search.DefaultTopK, c.Search.MaxTopK))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be > 0, got %d", c.Embedding.Dimension))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 330)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.isDevelopment", false)
	v.SetDefault("server.rateLimitPerMinute", 60)
	v.SetDefault("server.maxQueryLength", 2000)

	v.SetDefault("admin.password", "")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.baseURL", "https://api.notion.com")
	v.SetDefault("notion.version", "2022-06-28")
	v.SetDefault("notion.timeoutSec", 20)
	v.SetDefault("notion.requestsPerSecond", 3.0)
	v.SetDefault("notion.databases.knowledge", "")
	v.SetDefault("notion.databases.missions", "")
	v.SetDefault("notion.databases.expertise", "")
	v.SetDefault("notion.databases.faqs", "")

	v.SetDefault("knowledge.title", "Baptiste Leroux - Alpa Stratégie")

	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.timeoutSec", 15)
	v.SetDefault("embedding.requestsPerSecond", 0.0)

	v.SetDefault("vector.provider", "milvus")
	v.SetDefault("vector.milvus.endpoint", "localhost:19530")
	v.SetDefault("vector.milvus.apiKey", "")
	v.SetDefault("vector.milvus.collectionName", "aia_knowledge")
	v.SetDefault("vector.qdrant.url", "http://localhost:6334")
	v.SetDefault("vector.qdrant.apiKey", "")
	v.SetDefault("vector.qdrant.collectionName", "aia_knowledge")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlMinutes", 15)
	v.SetDefault("cache.maxEntries", 0)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("indexing.chunkSize", 500)
	v.SetDefault("indexing.chunkOverlap", 50)
	v.SetDefault("indexing.embedBatchSize", 50)
	v.SetDefault("indexing.embedConcurrency", 0)
	v.SetDefault("indexing.upsertBatchSize", 100)
	v.SetDefault("indexing.partialFailure", "fail")
	v.SetDefault("indexing.chunkIDs", "sequential")
	v.SetDefault("indexing.pruneOrphans", false)
	v.SetDefault("indexing.timeoutSec", 300)

	v.SetDefault("search.defaultTopK", 10)
	v.SetDefault("search.maxTopK", 50)

	v.SetDefault("sqlite.path", "./data/aia.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
