package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultYieldInterval, cfg.Delivery.YieldInterval.Duration)
	assert.Equal(t, DefaultMaxToolIterations, cfg.Gateway.MaxToolIterations)
	assert.Equal(t, DefaultSplitMarker, cfg.Delivery.SplitMarker)
	assert.Equal(t, DefaultTelegramEditEvery, cfg.Telegram.CardUpdateInterval.Duration)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"

[gateway]
default_provider = "deepseek"
max_tool_iterations = 3

[[providers]]
name = "deepseek"
client_type = "openai"
base_url = "https://api.deepseek.com/v1"
api_key_env = "REPLYD_TEST_KEY"

[[models]]
id = "deepseek/deepseek-chat"
display_name = "DeepSeek"

[[models]]
id = "backup"

[delivery]
yield_interval = "250ms"
max_messages = 3
multi_message_chats = ["oc_1"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REPLYD_TEST_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Gateway.MaxToolIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Delivery.YieldInterval.Duration)
	assert.Equal(t, DefaultMinDelay, cfg.Delivery.MinDelay.Duration)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "deepseek/deepseek-chat", cfg.Models[0].ID)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "sk-test", cfg.Providers[0].ResolveAPIKey())
	assert.Equal(t, []string{"oc_1"}, cfg.Delivery.MultiMessageChats)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":   "[delivery]\nyield_interval = \"soon\"\n",
		"bad client":     "[[providers]]\nname = \"x\"\nclient_type = \"cohere\"\n",
		"zero messages":  "[delivery]\nmax_messages = 0\n",
		"delay order":    "[delivery]\nmin_delay = \"10s\"\nmax_delay = \"1s\"\n",
		"unknown lock":   "[lock]\nbackend = \"redis\"\n",
		"empty model id": "[[models]]\ndisplay_name = \"x\"\n",
		"telegram token": "[telegram]\nenabled = true\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.Len(t, cfg.Models, 3)
	assert.Equal(t, "deepseek/deepseek-chat", cfg.Models[0].ID)
	assert.Equal(t, time.Second, cfg.Telegram.CardUpdateInterval.Duration)
	assert.False(t, cfg.Feishu.Enabled)
}
