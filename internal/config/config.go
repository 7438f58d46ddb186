package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Drive     DriveConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Render    RenderConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	GenerateTimeout  time.Duration
}

type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimension  int
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

type DriveConfig struct {
	CredentialsFile   string
	RequestsPerSecond float64
	Burst             int
	MimeFilter        []string
	MaxDownloadBytes  int64
	// TenantFolders maps tenant id to root folder id for deployments
	// without a tenants table ("acme=1AbC,globex=9XyZ").
	TenantFolders map[string]string
}

type IngestConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	Concurrency       int
	ExtractTimeout    time.Duration
	WorkerConcurrency int
}

type RetrievalConfig struct {
	TopK          int
	MaxSources    int
	FilterEnabled bool
	MembershipTTL time.Duration
	VectorBackend string // "pgvector" or "memory"
	VectorTimeout time.Duration
}

type RenderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoadDotEnv reads KEY=value files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var p parser

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: p.int("SERVER_PORT", 8080),

			CORSOrigins:    getEnvListDefault("CORS_ORIGINS", "*"),
			RateLimitRPS:   p.float("RATE_LIMIT_RPS", 20),
			RateLimitBurst: p.int("RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: p.int("DB_MAX_CONNS", 20),
			MinConns: p.int("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       p.int("LLM_MAX_RETRIES", 2),
			GenerateTimeout:  p.duration("GENERATE_TIMEOUT", 60*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:   getEnv("EMBED_PROVIDER", "openai"),
			Model:      getEnv("EMBED_MODEL", "text-embedding-3-small"),
			Dimension:  p.int("EMBED_DIMENSION", 1536),
			BatchSize:  p.int("EMBED_BATCH_SIZE", 100),
			MaxRetries: p.int("EMBED_MAX_RETRIES", 2),
			Timeout:    p.duration("EMBED_TIMEOUT", 30*time.Second),
		},
		Drive: DriveConfig{
			CredentialsFile:   getEnv("DRIVE_CREDENTIALS_FILE", ""),
			RequestsPerSecond: p.float("DRIVE_RPS", 8),
			Burst:             p.int("DRIVE_BURST", 10),
			MimeFilter:        getEnvList("DRIVE_MIME_FILTER"),
			MaxDownloadBytes:  int64(p.int("DRIVE_MAX_DOWNLOAD_MB", 50)) << 20,
			TenantFolders:     p.pairs("TENANT_FOLDERS"),
		},
		Ingest: IngestConfig{
			ChunkSize:         p.int("CHUNK_SIZE", 2000),
			ChunkOverlap:      p.int("CHUNK_OVERLAP", 200),
			Concurrency:       p.int("INGEST_CONCURRENCY", 4),
			ExtractTimeout:    p.duration("EXTRACT_TIMEOUT", 120*time.Second),
			WorkerConcurrency: p.int("WORKER_CONCURRENCY", 4),
		},
		Retrieval: RetrievalConfig{
			TopK:          p.int("RETRIEVAL_TOP_K", 24),
			MaxSources:    p.int("RETRIEVAL_MAX_SOURCES", 8),
			FilterEnabled: p.bool("RETRIEVAL_FILTER_ENABLED", true),
			MembershipTTL: p.duration("MEMBERSHIP_TTL", 60*time.Second),
			VectorBackend: getEnv("VECTOR_BACKEND", "pgvector"),
			VectorTimeout: p.duration("VECTOR_TIMEOUT", 15*time.Second),
		},
		Render: RenderConfig{
			BaseURL: getEnv("RENDER_BASE_URL", ""),
			Timeout: p.duration("RENDER_TIMEOUT", 20*time.Second),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings every process needs. Keys for providers that
// are not selected are not required.
func (c *Config) Validate() error {
	var missing []string
	if c.Retrieval.VectorBackend == "pgvector" && c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	for _, provider := range []string{c.LLM.DefaultProvider, c.Embedding.Provider} {
		switch provider {
		case "openai":
			if c.LLM.OpenAIKey == "" {
				missing = append(missing, "OPENAI_API_KEY")
			}
		case "anthropic":
			if c.LLM.AnthropicKey == "" {
				missing = append(missing, "ANTHROPIC_API_KEY")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(dedupe(missing), ", "))
	}

	switch c.Retrieval.VectorBackend {
	case "pgvector", "memory":
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND %q", c.Retrieval.VectorBackend)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("invalid CHUNK_SIZE %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("invalid INGEST_CONCURRENCY %d", c.Ingest.Concurrency)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvListDefault(key, fallback string) []string {
	if os.Getenv(key) == "" {
		return []string{fallback}
	}
	return getEnvList(key)
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parser reads typed values and keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) pairs(key string) map[string]string {
	out := map[string]string{}
	for _, item := range getEnvList(key) {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			p.fail(key, fmt.Errorf("expected id=folder, got %q", item))
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
