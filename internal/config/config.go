package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	GLPI     GLPIConfig     `koanf:"glpi"`
	Storage  StorageConfig  `koanf:"storage"`
	Search   SearchConfig   `koanf:"search"`
	Models   ModelsConfig   `koanf:"models"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Extract  ExtractConfig  `koanf:"extract"`
	Daemon   DaemonConfig   `koanf:"daemon"`
	Prompts  PromptsConfig  `koanf:"prompts"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ServiceName     string `koanf:"service_name"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

// GLPIConfig configures the session-managed ticketing API client.
type GLPIConfig struct {
	URL                string  `koanf:"url"`
	AppToken           string  `koanf:"app_token"`
	UserToken          string  `koanf:"user_token"`
	Timeout            string  `koanf:"timeout"`
	RateLimit          float64 `koanf:"rate_limit"`
	RateBurst          int     `koanf:"rate_burst"`
	InsecureSkipVerify bool    `koanf:"insecure_skip_verify"`
}

type StorageConfig struct {
	Backend   string `koanf:"backend"` // "s3" or "filesystem"
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Path      string `koanf:"path"`
}

type SearchConfig struct {
	Backend   string `koanf:"backend"` // "meilisearch" or "chromem"
	URL       string `koanf:"url"`
	MasterKey string `koanf:"master_key"`
	Index     string `koanf:"index"`
	Path      string `koanf:"path"`
	Timeout   string `koanf:"timeout"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	Embedding           string          `koanf:"embedding"`
	BaseURL             string          `koanf:"base_url"`
	APIKey              string          `koanf:"api_key"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Temperature         float64         `koanf:"temperature"`
	MaxTokens           int             `koanf:"max_tokens"`
	RequestTimeout      string          `koanf:"request_timeout"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name     string `koanf:"name"`
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type PipelineConfig struct {
	MaxGenerationIterations int    `koanf:"max_generation_iterations"`
	ReportTitle             string `koanf:"report_title"`
}

type ExtractConfig struct {
	PDFToTextPath string `koanf:"pdftotext_path"`
	Timeout       string `koanf:"timeout"`
}

type PromptsConfig struct {
	Report ReportPromptConfig `koanf:"report"`
}

type ReportPromptConfig struct {
	System     string `koanf:"system"`
	Guidelines string `koanf:"guidelines"`
}

type DaemonConfig struct {
	DataDir                string `koanf:"data_dir"`
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	LockTimeout            string `koanf:"lock_timeout"`
	LockRetry              string `koanf:"lock_retry"`
	LockMaxRetry           int    `koanf:"lock_max_retry"`
}

const (
	DefaultServerPort                     = 8000
	DefaultServerLogLevel                 = "info"
	DefaultServerServiceName              = "AutoPDF"
	DefaultServerReadTimeout              = "10s"
	DefaultServerWriteTimeout             = "10m"
	DefaultServerIdleTimeout              = "60s"
	DefaultServerShutdownTimeout          = "30s"
	DefaultGLPITimeout                    = "30s"
	DefaultGLPIRateLimit                  = 10.0
	DefaultGLPIRateBurst                  = 10
	DefaultStorageBackend                 = "s3"
	DefaultStorageRegion                  = "us-east-2"
	DefaultSearchBackend                  = "meilisearch"
	DefaultSearchIndex                    = "glpi_incidents"
	DefaultSearchTimeout                  = "30s"
	DefaultModelDefault                   = "gpt-4o-mini"
	DefaultModelMaxFallbackAttempts       = 2
	DefaultModelTemperature               = 0.2
	DefaultModelMaxTokens                 = 1000
	DefaultModelRequestTimeout            = "120s"
	DefaultOpenAIBaseURL                  = "https://api.openai.com/v1"
	DefaultOllamaBaseURL                  = "http://localhost:11434/v1"
	DefaultOllamaAPIKey                   = "ollama"
	DefaultPipelineMaxGenerationIteration = 3
	DefaultPipelineReportTitle            = "Incident Report - %d"
	DefaultExtractPDFToTextPath           = "pdftotext"
	DefaultExtractTimeout                 = "30s"
	DefaultDaemonShutdownTimeout          = "30s"
	DefaultDaemonHealthCheckInterval      = "30s"
	DefaultDaemonStartupShutdownTimeout   = "10s"
	DefaultDaemonLockTimeout              = "5s"
	DefaultDaemonLockRetry                = "100ms"
	DefaultDaemonLockMaxRetry             = 50
	DefaultReportSystemPrompt             = "You are an IT service desk analyst. Write a concise incident report from the ticket data provided."
	DefaultReportGuidelinesPrompt         = "Structure the report in markdown with these sections: Summary, Impact, Timeline, Actions Taken, Resolution, Recommendations.\nUse only facts present in the ticket data. If a section has no supporting data, write \"Not recorded.\"\nDo not invent names, dates or identifiers. Do not wrap the report in a code block."
)

// legacyEnv maps the variable names used by existing deployments onto config keys.
var legacyEnv = map[string]string{
	"GLPI_URL":               "glpi.url",
	"GLPI_APP_TOKEN":         "glpi.app_token",
	"GLPI_USER_TOKEN":        "glpi.user_token",
	"MEILISEARCH_URL":        "search.url",
	"MEILISEARCH_MASTER_KEY": "search.master_key",
	"WASABI_ENDPOINT":        "storage.endpoint",
	"WASABI_ACCESS_KEY":      "storage.access_key",
	"WASABI_SECRET_KEY":      "storage.secret_key",
	"OPENAI_API_BASE":        "models.base_url",
	"OPENAI_API_KEY":         "models.api_key",
	"MODEL_NAME":             "models.default",
	"BUCKET_NAME":            "storage.bucket",
	"MAX_RAG_ITERATIONS":     "pipeline.max_generation_iterations",
}

const envPrefix = "AUTOPDF_"

// envKey translates an environment variable name into a config key, or "" to skip it.
// AUTOPDF_SERVER__LOG_LEVEL becomes server.log_level.
func envKey(name string) string {
	if key, ok := legacyEnv[name]; ok {
		return key
	}
	if !strings.HasPrefix(name, envPrefix) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, envPrefix)), "__", ".")
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                        DefaultServerPort,
		"server.log_level":                   DefaultServerLogLevel,
		"server.service_name":                DefaultServerServiceName,
		"server.read_timeout":                DefaultServerReadTimeout,
		"server.write_timeout":               DefaultServerWriteTimeout,
		"server.idle_timeout":                DefaultServerIdleTimeout,
		"server.shutdown_timeout":            DefaultServerShutdownTimeout,
		"glpi.timeout":                       DefaultGLPITimeout,
		"glpi.rate_limit":                    DefaultGLPIRateLimit,
		"glpi.rate_burst":                    DefaultGLPIRateBurst,
		"glpi.insecure_skip_verify":          false,
		"storage.backend":                    DefaultStorageBackend,
		"storage.region":                     DefaultStorageRegion,
		"storage.path":                       filepath.Join(os.Getenv("HOME"), ".autopdf", "objects"),
		"search.backend":                     DefaultSearchBackend,
		"search.index":                       DefaultSearchIndex,
		"search.timeout":                     DefaultSearchTimeout,
		"search.path":                        filepath.Join(os.Getenv("HOME"), ".autopdf", "index"),
		"models.default":                     DefaultModelDefault,
		"models.max_fallback_attempts":       DefaultModelMaxFallbackAttempts,
		"models.temperature":                 DefaultModelTemperature,
		"models.max_tokens":                  DefaultModelMaxTokens,
		"models.request_timeout":             DefaultModelRequestTimeout,
		"pipeline.max_generation_iterations": DefaultPipelineMaxGenerationIteration,
		"pipeline.report_title":              DefaultPipelineReportTitle,
		"extract.pdftotext_path":             DefaultExtractPDFToTextPath,
		"extract.timeout":                    DefaultExtractTimeout,
		"daemon.data_dir":                    filepath.Join(os.Getenv("HOME"), ".autopdf"),
		"daemon.shutdown_timeout":            DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":       DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout":    DefaultDaemonStartupShutdownTimeout,
		"daemon.lock_timeout":                DefaultDaemonLockTimeout,
		"daemon.lock_retry":                  DefaultDaemonLockRetry,
		"daemon.lock_max_retry":              DefaultDaemonLockMaxRetry,
		"prompts.report.system":              DefaultReportSystemPrompt,
		"prompts.report.guidelines":          DefaultReportGuidelinesPrompt,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".autopdf", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("", ".", envKey), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	normalizeModels(&cfg.Models)

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalizeModels registers the default model from the flat base_url/api_key settings
// when no explicit registry entry names it, and injects provider keys from the environment.
func normalizeModels(m *ModelsConfig) {
	for i, entry := range m.Registry {
		if entry.Provider == "" {
			m.Registry[i].Provider = "openai"
		}
	}

	if m.Default != "" && !m.hasModel(m.Default) {
		m.Registry = append(m.Registry, ModelRegistry{
			Name:     m.Default,
			Provider: "openai",
			BaseURL:  m.BaseURL,
			APIKey:   m.APIKey,
		})
	}

	// Post-Process: Inject standard Env Vars if missing
	injectKey := func(provider, key string) {
		if key == "" {
			return
		}
		for i, entry := range m.Registry {
			if entry.Provider == provider && entry.APIKey == "" {
				m.Registry[i].APIKey = key
			}
		}
	}
	injectKey("openai", m.APIKey)
	injectKey("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	injectKey("gemini", os.Getenv("GEMINI_API_KEY"))
}

func (m ModelsConfig) hasModel(name string) bool {
	for _, entry := range m.Registry {
		if entry.Name == name {
			return true
		}
	}
	return false
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	for _, field := range []*string{&cfg.Daemon.DataDir, &cfg.Storage.Path, &cfg.Search.Path} {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		if expanded != "" {
			*field = expanded
		}
	}
	return nil
}
