package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StrategyEmbedding = "embedding"
	StrategyLexical   = "lexical"

	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

// LLMConfig describes one model endpoint. Key is empty when the provider has
// no credentials configured.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type ContentConfig struct {
	Paths         []string `yaml:"paths"`
	MaxChars      int      `yaml:"max_chars"`
	MarkdownPlain bool     `yaml:"markdown_plain"`
}

type RAGConfig struct {
	Strategy             string `yaml:"strategy"`
	ChunkSize            int    `yaml:"chunk_size"`
	ChunkOverlap         int    `yaml:"chunk_overlap"`
	TopK                 int    `yaml:"top_k"`
	LexicalFallbackChars int    `yaml:"lexical_fallback_chars"`
	EmbedBatchSize       int    `yaml:"embed_batch_size"`
	EmbedConcurrency     int    `yaml:"embed_concurrency"`
}

// ChatConfig selects the answer provider. Provider is one of auto, openai or
// ollama; OpenAI is the primary and Ollama the fallback in auto mode.
type ChatConfig struct {
	Provider    string    `yaml:"provider"`
	Temperature float64   `yaml:"temperature"`
	OpenAI      LLMConfig `yaml:"openai"`
	Ollama      LLMConfig `yaml:"ollama"`
}

type PromptConfig struct {
	PartyName string `yaml:"party_name"`
	Language  string `yaml:"language"`
}

type DatabaseConfig struct {
	URL    string `yaml:"url"`
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type ServerConfig struct {
	Port         int  `yaml:"port"`
	WatchContent bool `yaml:"watch_content"`
}

type Config struct {
	Content  ContentConfig  `yaml:"content"`
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	LLM      ChatConfig     `yaml:"llm"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns a configuration that runs without any file or environment:
// degraded retrieval and an Ollama-only answer chain.
func Default() *Config {
	return &Config{
		Content: ContentConfig{
			Paths: []string{"content/party_program.md", "content/Politikk"},
		},
		RAG: RAGConfig{
			Strategy:             StrategyEmbedding,
			ChunkSize:            600,
			ChunkOverlap:         80,
			TopK:                 6,
			LexicalFallbackChars: 4000,
			EmbedBatchSize:       20,
			EmbedConcurrency:     4,
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
		},
		LLM: ChatConfig{
			Provider:    ProviderAuto,
			Temperature: 0.2,
			OpenAI: LLMConfig{
				Provider: ProviderOpenAI,
				Model:    "gpt-4o-mini",
			},
			Ollama: LLMConfig{
				Provider: ProviderOllama,
				BaseURL:  "http://127.0.0.1:11434",
				Model:    "llama3.2:3b",
			},
		},
		Prompt: PromptConfig{
			PartyName: "partiet",
			Language:  "norsk bokmål",
		},
		Database: DatabaseConfig{
			Driver: DriverPgdriver,
		},
		Server: ServerConfig{
			Port: 3000,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env is optional, like the config file
	_ = godotenv.Load()

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	if v, ok := lookup("CONTENT_PATHS"); ok && strings.TrimSpace(v) != "" {
		cfg.Content.Paths = splitList(v)
	}

	str("RETRIEVAL_STRATEGY", &cfg.RAG.Strategy)
	str("EMBEDDING_PROVIDER", &cfg.EmbedLLM.Provider)
	str("OPENAI_EMBEDDING_MODEL", &cfg.EmbedLLM.Model)
	str("EMBEDDING_BASE_URL", &cfg.EmbedLLM.BaseURL)
	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAI.Key)
	str("OPENAI_MODEL", &cfg.LLM.OpenAI.Model)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAI.BaseURL)
	str("OLLAMA_BASE_URL", &cfg.LLM.Ollama.BaseURL)
	str("OLLAMA_MODEL", &cfg.LLM.Ollama.Model)
	str("PARTY_NAME", &cfg.Prompt.PartyName)
	str("RESPONSE_LANGUAGE", &cfg.Prompt.Language)
	str("DATABASE_URL", &cfg.Database.URL)
	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("LOG_LEVEL", &cfg.LogLevel)

	cfg.RAG.Strategy = strings.ToLower(cfg.RAG.Strategy)
	cfg.EmbedLLM.Provider = strings.ToLower(cfg.EmbedLLM.Provider)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)

	// the embedding key follows the embedding provider
	if cfg.EmbedLLM.Key == "" {
		switch cfg.EmbedLLM.Provider {
		case ProviderOpenAI:
			cfg.EmbedLLM.Key = cfg.LLM.OpenAI.Key
		case ProviderGemini:
			str("GEMINI_API_KEY", &cfg.EmbedLLM.Key)
		}
	}
	if cfg.EmbedLLM.Provider == ProviderOllama && cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = cfg.LLM.Ollama.BaseURL
	}

	for key, dst := range map[string]*int{
		"MAX_CORPUS_CHARS":       &cfg.Content.MaxChars,
		"CHUNK_SIZE":             &cfg.RAG.ChunkSize,
		"CHUNK_OVERLAP":          &cfg.RAG.ChunkOverlap,
		"TOP_K":                  &cfg.RAG.TopK,
		"LEXICAL_FALLBACK_CHARS": &cfg.RAG.LexicalFallbackChars,
		"EMBED_BATCH_SIZE":       &cfg.RAG.EmbedBatchSize,
		"PORT":                   &cfg.Server.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if err := flag("CONTENT_MARKDOWN_PLAIN", &cfg.Content.MarkdownPlain); err != nil {
		return err
	}
	if err := flag("WATCH_CONTENT", &cfg.Server.WatchContent); err != nil {
		return err
	}
	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.RAG.Strategy {
	case StrategyEmbedding, StrategyLexical:
	default:
		return fmt.Errorf("unknown retrieval strategy %q", c.RAG.Strategy)
	}
	switch c.LLM.Provider {
	case ProviderAuto, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.EmbedLLM.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbedLLM.Provider)
	}
	switch c.Database.Driver {
	case DriverPgdriver, DriverPQ:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
