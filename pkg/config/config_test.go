package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "")
	t.Setenv("WEBHOOK_ENABLED", "")

	cfg := LoadConfig()

	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.True(t, cfg.WebhookEnabled)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "0.2", cfg.UsagePricePerTurn)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "20")
	t.Setenv("WEBHOOK_ENABLED", "false")
	t.Setenv("DEFAULT_TEMPERATURE", "0.7")
	t.Setenv("PRODUCTS_PROMPT_ID", "42")
	t.Setenv("COMPLETION_TIMEOUT", "5s")

	cfg := LoadConfig()

	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.False(t, cfg.WebhookEnabled)
	assert.InDelta(t, 0.7, cfg.DefaultTemperature, 1e-9)
	assert.Equal(t, int64(42), cfg.ProductsPromptID)
	assert.Equal(t, 5*time.Second, cfg.CompletionTimeout)
}

func TestTypedHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "twelve")
	t.Setenv("SOME_BOOL", "maybe")

	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
	assert.True(t, getEnvBool("SOME_BOOL", true))
}
