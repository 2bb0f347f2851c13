package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/autopdf/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, configInitCmd.RunE(cmd, nil))

	configPath := filepath.Join(tmpDir, ".autopdf", "config.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Initialized config")

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "glpi")
	assert.Contains(t, parsed, "storage")

	out.Reset()
	require.NoError(t, configInitCmd.RunE(cmd, nil), "init should succeed when config exists")
	assert.Contains(t, out.String(), "already exists")
}

func TestRedactConfigSecrets(t *testing.T) {
	original := &config.Config{
		GLPI: config.GLPIConfig{
			URL:       "https://glpi.example.com/apirest.php",
			AppToken:  "app-token-123456",
			UserToken: "user-token-abcdef",
		},
		Storage: config.StorageConfig{
			AccessKey: "AKIAEXAMPLE",
			SecretKey: "wasabi-secret-key",
		},
		Search: config.SearchConfig{MasterKey: "meili-master-key"},
		Models: config.ModelsConfig{
			APIKey: "sk-flat-123456",
			Registry: []config.ModelRegistry{
				{Name: "m1", APIKey: "sk-secret-123456"},
				{Name: "m2", APIKey: "abcd"},
			},
		},
	}

	redacted := redactConfigSecrets(original)
	require.NotNil(t, redacted)

	assert.Equal(t, "ap************56", redacted.GLPI.AppToken)
	assert.NotEqual(t, original.GLPI.UserToken, redacted.GLPI.UserToken)
	assert.NotEqual(t, original.Storage.AccessKey, redacted.Storage.AccessKey)
	assert.NotEqual(t, original.Storage.SecretKey, redacted.Storage.SecretKey)
	assert.NotEqual(t, original.Search.MasterKey, redacted.Search.MasterKey)
	assert.NotEqual(t, original.Models.APIKey, redacted.Models.APIKey)
	assert.Equal(t, "****", redacted.Models.Registry[1].APIKey)
	assert.Equal(t, original.GLPI.URL, redacted.GLPI.URL)

	assert.Equal(t, "sk-secret-123456", original.Models.Registry[0].APIKey, "original registry must not be modified")
	assert.Equal(t, "app-token-123456", original.GLPI.AppToken)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "ab**ef", maskSecret("abcdef"))
}

func TestWriteStructured(t *testing.T) {
	v := []map[string]any{{"object_name": "Other/1/abc.pdf"}}

	var js bytes.Buffer
	require.NoError(t, writeStructured(&js, outputJSON, v))
	assert.Contains(t, js.String(), `"object_name": "Other/1/abc.pdf"`)

	var ym bytes.Buffer
	require.NoError(t, writeStructured(&ym, outputYAML, v))
	assert.Contains(t, ym.String(), "object_name: Other/1/abc.pdf")

	assert.Error(t, validateOutput("xml"))
}

func TestRunCmd_RejectsBadTicketID(t *testing.T) {
	err := runCmd.RunE(runCmd, []string{"abc"})
	assert.ErrorContains(t, err, "invalid ticket id")

	err = runCmd.RunE(runCmd, []string{"0"})
	assert.ErrorContains(t, err, "invalid ticket id")
}
