package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for name := range legacyEnv {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearLegacyEnv(t)

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.Server.ServiceName != DefaultServerServiceName {
		t.Errorf("Expected default service name %s, got %s", DefaultServerServiceName, cfg.Server.ServiceName)
	}
	if cfg.GLPI.Timeout != DefaultGLPITimeout {
		t.Errorf("Expected default glpi timeout %s, got %s", DefaultGLPITimeout, cfg.GLPI.Timeout)
	}
	if cfg.GLPI.InsecureSkipVerify {
		t.Error("Expected TLS verification to be on by default")
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("Expected default storage backend %s, got %s", DefaultStorageBackend, cfg.Storage.Backend)
	}
	if cfg.Storage.Region != DefaultStorageRegion {
		t.Errorf("Expected default storage region %s, got %s", DefaultStorageRegion, cfg.Storage.Region)
	}
	if cfg.Search.Index != DefaultSearchIndex {
		t.Errorf("Expected default search index %s, got %s", DefaultSearchIndex, cfg.Search.Index)
	}
	if cfg.Pipeline.MaxGenerationIterations != DefaultPipelineMaxGenerationIteration {
		t.Errorf("Expected default max generation iterations %d, got %d", DefaultPipelineMaxGenerationIteration, cfg.Pipeline.MaxGenerationIterations)
	}
	if cfg.Models.Temperature != DefaultModelTemperature {
		t.Errorf("Expected default temperature %v, got %v", DefaultModelTemperature, cfg.Models.Temperature)
	}
	if cfg.Models.MaxTokens != DefaultModelMaxTokens {
		t.Errorf("Expected default max tokens %d, got %d", DefaultModelMaxTokens, cfg.Models.MaxTokens)
	}
	if len(cfg.Models.Registry) != 1 || cfg.Models.Registry[0].Name != DefaultModelDefault {
		t.Errorf("Expected implicit registry entry for %s, got %+v", DefaultModelDefault, cfg.Models.Registry)
	}
	if cfg.Daemon.LockMaxRetry != DefaultDaemonLockMaxRetry {
		t.Errorf("Expected default lock max retry %d, got %d", DefaultDaemonLockMaxRetry, cfg.Daemon.LockMaxRetry)
	}
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearLegacyEnv(t)
	t.Setenv("GLPI_URL", "https://glpi.example.com/apirest.php")
	t.Setenv("GLPI_APP_TOKEN", "app")
	t.Setenv("GLPI_USER_TOKEN", "user")
	t.Setenv("MEILISEARCH_URL", "http://meili:7700")
	t.Setenv("MEILISEARCH_MASTER_KEY", "master")
	t.Setenv("WASABI_ENDPOINT", "https://s3.us-east-2.wasabisys.com")
	t.Setenv("WASABI_ACCESS_KEY", "ak")
	t.Setenv("WASABI_SECRET_KEY", "sk")
	t.Setenv("OPENAI_API_BASE", "http://llm:8080/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MODEL_NAME", "llama-3")
	t.Setenv("BUCKET_NAME", "reports")
	t.Setenv("MAX_RAG_ITERATIONS", "5")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.GLPI.URL != "https://glpi.example.com/apirest.php" {
		t.Fatalf("glpi url = %q", cfg.GLPI.URL)
	}
	if cfg.Storage.Bucket != "reports" {
		t.Fatalf("bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Pipeline.MaxGenerationIterations != 5 {
		t.Fatalf("max iterations = %d, want 5", cfg.Pipeline.MaxGenerationIterations)
	}
	if len(cfg.Models.Registry) != 1 {
		t.Fatalf("expected 1 registry entry, got %d", len(cfg.Models.Registry))
	}
	entry := cfg.Models.Registry[0]
	if entry.Name != "llama-3" || entry.BaseURL != "http://llm:8080/v1" || entry.APIKey != "sk-test" {
		t.Fatalf("unexpected registry entry %+v", entry)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected complete legacy env to validate, got %v", err)
	}
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearLegacyEnv(t)
	t.Setenv("AUTOPDF_SERVER__LOG_LEVEL", "debug")
	t.Setenv("AUTOPDF_SEARCH__BACKEND", "chromem")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Search.Backend != "chromem" {
		t.Fatalf("search backend = %q, want chromem", cfg.Search.Backend)
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"GLPI_URL":                   "glpi.url",
		"AUTOPDF_GLPI__RATE_LIMIT":   "glpi.rate_limit",
		"AUTOPDF_STORAGE__BACKEND":   "storage.backend",
		"PATH":                       "",
		"AUTOPDF_DAEMON__DATA_DIR":   "daemon.data_dir",
		"AUTOPDF_MODELS__MAX_TOKENS": "models.max_tokens",
	}
	for name, want := range cases {
		if got := envKey(name); got != want {
			t.Errorf("envKey(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearLegacyEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
storage:
  backend: filesystem
  path: ~/reports
models:
  default: claude-3-5-haiku-latest
  registry:
    - name: claude-3-5-haiku-latest
      provider: anthropic
      api_key: ant-key
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !strings.HasSuffix(cfg.Storage.Path, "reports") || strings.HasPrefix(cfg.Storage.Path, "~") {
		t.Fatalf("expected expanded storage path, got %s", cfg.Storage.Path)
	}
	if len(cfg.Models.Registry) != 1 || cfg.Models.Registry[0].Provider != "anthropic" {
		t.Fatalf("expected explicit anthropic registry entry only, got %+v", cfg.Models.Registry)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearLegacyEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for empty environment")
	}
	for _, want := range []string{"GLPI_URL", "GLPI_APP_TOKEN", "GLPI_USER_TOKEN", "BUCKET_NAME", "WASABI_ENDPOINT", "MEILISEARCH_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "ftp"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "ftp") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", "30s")
	if err != nil || d.Seconds() != 30 {
		t.Fatalf("DurationOrDefault fallback = %v, %v", d, err)
	}
	if _, err := DurationOrDefault("soon", "30s"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := DurationOrDefault("", ""); err == nil {
		t.Fatal("expected empty duration error")
	}
}
