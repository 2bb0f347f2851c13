package config

import (
	"fmt"
	"strings"
)

// Validate reports every missing required setting at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var missing []string
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	require(cfg.GLPI.URL, "glpi.url (GLPI_URL)")
	require(cfg.GLPI.AppToken, "glpi.app_token (GLPI_APP_TOKEN)")
	require(cfg.GLPI.UserToken, "glpi.user_token (GLPI_USER_TOKEN)")
	require(cfg.Storage.Bucket, "storage.bucket (BUCKET_NAME)")
	require(cfg.Models.Default, "models.default (MODEL_NAME)")

	switch cfg.Storage.Backend {
	case "s3":
		require(cfg.Storage.Endpoint, "storage.endpoint (WASABI_ENDPOINT)")
		require(cfg.Storage.AccessKey, "storage.access_key (WASABI_ACCESS_KEY)")
		require(cfg.Storage.SecretKey, "storage.secret_key (WASABI_SECRET_KEY)")
	case "filesystem":
		require(cfg.Storage.Path, "storage.path")
	default:
		return fmt.Errorf("unknown storage backend %q (want s3 or filesystem)", cfg.Storage.Backend)
	}

	switch cfg.Search.Backend {
	case "meilisearch":
		require(cfg.Search.URL, "search.url (MEILISEARCH_URL)")
		require(cfg.Search.MasterKey, "search.master_key (MEILISEARCH_MASTER_KEY)")
	case "chromem":
		require(cfg.Search.Path, "search.path")
	default:
		return fmt.Errorf("unknown search backend %q (want meilisearch or chromem)", cfg.Search.Backend)
	}

	for _, entry := range cfg.Models.Registry {
		if entry.Name == cfg.Models.Default && entry.Provider != "ollama" {
			require(entry.APIKey, fmt.Sprintf("api key for model %s (OPENAI_API_KEY)", entry.Name))
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", cfg.Server.Port)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
