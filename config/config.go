package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/burrowapp/burrow/internal/fileutil"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "burrow"
	ConfigFileName  = "config.yaml"
	EnvFileName     = ".env"
	VectorDBName    = "vectors.db"
	HistoryDBName   = "history.db"
	IndexerLockName = "indexer.lock"
)

type Config struct {
	Ollama       OllamaConfig       `yaml:"ollama"`
	Models       ModelsConfig       `yaml:"models"`
	VectorSearch VectorSearchConfig `yaml:"vector_search"`
	Indexer      IndexerConfig      `yaml:"indexer"`
	Daemon       DaemonConfig       `yaml:"daemon"`
	Store        StoreConfig        `yaml:"store"`
	OpenRouter   OpenRouterConfig   `yaml:"openrouter"`
}

type OllamaConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type ModelSpec struct {
	Provider string `yaml:"provider"` // ollama | openrouter
	Name     string `yaml:"name"`
}

type ModelsConfig struct {
	Embedding ModelSpec `yaml:"embedding"`
}

type VectorSearchConfig struct {
	Enabled          bool     `yaml:"enabled"`
	TopK             int      `yaml:"top_k"`
	MinScore         float32  `yaml:"min_score"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes"`
	IndexDirs        []string `yaml:"index_dirs"`
	FileExtensions   []string `yaml:"file_extensions"`
	ExcludePatterns  []string `yaml:"exclude_patterns"`
}

type IndexerConfig struct {
	IntervalHours   int  `yaml:"interval_hours"`
	MaxContentChars int  `yaml:"max_content_chars"`
	WatchChanges    bool `yaml:"watch_changes"` // enable fsnotify in the host loop
	DebounceMs      int  `yaml:"debounce_ms"`
}

type DaemonConfig struct {
	AutoStart          bool `yaml:"auto_start"`
	StartupTimeoutSecs int  `yaml:"startup_timeout_secs"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // sqlite | postgres | qdrant
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
}

type OpenRouterConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
}

// DefaultFileExtensions is the extension allow-list used when the config file
// does not set one.
var DefaultFileExtensions = []string{
	"txt", "md", "rs", "ts", "tsx", "js", "py", "toml", "yaml", "yml", "json", "sh",
	"css", "html", "pdf", "doc", "docx", "xlsx", "xls", "pptx", "odt", "ods", "odp",
	"csv", "rtf",
}

func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			TimeoutSecs: 30,
		},
		Models: ModelsConfig{
			Embedding: ModelSpec{Provider: "ollama", Name: "qwen3-embedding:8b"},
		},
		VectorSearch: VectorSearchConfig{
			Enabled:          true,
			TopK:             10,
			MinScore:         0.3,
			MaxFileSizeBytes: 1_000_000,
			IndexDirs:        []string{"~/Documents", "~/Projects", "~/Downloads"},
			FileExtensions:   append([]string(nil), DefaultFileExtensions...),
			ExcludePatterns: []string{
				"node_modules/",
				"target/",
				"__pycache__/",
				"*.min.js",
				"*.lock",
				"package-lock.json",
			},
		},
		Indexer: IndexerConfig{
			IntervalHours:   24,
			MaxContentChars: 4096,
			DebounceMs:      500,
		},
		Daemon: DaemonConfig{
			AutoStart:          true,
			StartupTimeoutSecs: 5,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
	}
}

func GetConfigPath(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// Load reads config.yaml from configDir. A missing file yields the defaults.
// Environment overrides are applied last, after loading configDir/.env.
func Load(configDir string) (*Config, error) {
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(GetConfigPath(configDir))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return cfg, nil
}

// loadDotEnv populates missing environment variables from configDir/.env.
// Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	envPath := filepath.Join(configDir, EnvFileName)
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.TimeoutSecs <= 0 {
		c.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}
	if c.Models.Embedding.Provider == "" {
		c.Models.Embedding.Provider = defaults.Models.Embedding.Provider
	}
	if c.Models.Embedding.Name == "" {
		c.Models.Embedding.Name = defaults.Models.Embedding.Name
	}
	if c.VectorSearch.TopK <= 0 {
		c.VectorSearch.TopK = defaults.VectorSearch.TopK
	}
	if c.VectorSearch.MaxFileSizeBytes <= 0 {
		c.VectorSearch.MaxFileSizeBytes = defaults.VectorSearch.MaxFileSizeBytes
	}
	if len(c.VectorSearch.FileExtensions) == 0 {
		c.VectorSearch.FileExtensions = defaults.VectorSearch.FileExtensions
	}
	if c.Indexer.IntervalHours <= 0 {
		c.Indexer.IntervalHours = defaults.Indexer.IntervalHours
	}
	if c.Indexer.MaxContentChars <= 0 {
		c.Indexer.MaxContentChars = defaults.Indexer.MaxContentChars
	}
	if c.Indexer.DebounceMs <= 0 {
		c.Indexer.DebounceMs = defaults.Indexer.DebounceMs
	}
	if c.Daemon.StartupTimeoutSecs <= 0 {
		c.Daemon.StartupTimeoutSecs = defaults.Daemon.StartupTimeoutSecs
	}
	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Store.Qdrant.Collection == "" {
		c.Store.Qdrant.Collection = AppName
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BURROW_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("BURROW_MODEL_EMBEDDING"); v != "" {
		c.Models.Embedding.Name = v
	}
	if v := os.Getenv("BURROW_VECTOR_SEARCH_ENABLED"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			c.VectorSearch.Enabled = true
		case "0", "false", "no", "off":
			c.VectorSearch.Enabled = false
		}
	}
	if v := os.Getenv("BURROW_OPENROUTER_API_KEY"); v != "" {
		c.OpenRouter.APIKey = v
	} else if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.OpenRouter.APIKey = v
	}
}

// HasAPIKey reports whether a non-blank OpenRouter key is configured.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.OpenRouter.APIKey) != ""
}

// ResolvedIndexDirs returns IndexDirs with a leading ~ expanded.
func (c *Config) ResolvedIndexDirs() []string {
	dirs := make([]string, 0, len(c.VectorSearch.IndexDirs))
	for _, d := range c.VectorSearch.IndexDirs {
		dirs = append(dirs, ExpandTilde(d))
	}
	return dirs
}

// ExpandTilde replaces a leading ~ with the user's home directory.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) Save(configDir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileutil.WriteFileAtomic(GetConfigPath(configDir), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
