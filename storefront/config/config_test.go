package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/paperbot/storefront/delivery"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseYAML = `
telegram:
  token: "1:token"
  admin_id: 7
storefront:
  api_base_url: "https://papers.example.com/"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "1:token", cfg.CoreConfig().Telegram.Token)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, "longpoll", cfg.Telegram.RunMode)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	assert.Equal(t, []int{50, 100, 250, 500}, cfg.Storefront.TopUpAmounts)
	assert.Equal(t, delivery.SinkLog, cfg.Delivery.Sink)
	assert.False(t, cfg.NeedsDatabase())
	assert.Zero(t, cfg.PopupTTL())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STOREFRONT_API_BASE_URL", "http://localhost:8080")
	t.Setenv("DELIVERY_SINK", "Redis")
	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Storefront.APIBaseURL)
	assert.Equal(t, delivery.SinkRedis, cfg.Delivery.Sink)
	assert.Equal(t, "localhost:6379", cfg.Delivery.Redis.Addr)
}

func TestPostgresSinkEnablesDatabase(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML+`
delivery:
  sink: postgres
database:
  host: db
  name: papers
`))
	require.NoError(t, err)
	assert.True(t, cfg.NeedsDatabase())
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]string{
		"missing base url": `
telegram:
  token: "1:token"
`,
		"relative base url": `
telegram:
  token: "1:token"
storefront:
  api_base_url: "/api"
`,
		"negative topup": baseYAML + `
  topup_amounts: [50, -1]
`,
		"postgres without host": baseYAML + `
delivery:
  sink: postgres
`,
		"unknown sink": baseYAML + `
delivery:
  sink: carrier-pigeon
`,
		"missing token": `
storefront:
  api_base_url: "https://papers.example.com"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDispatcherOptions(t *testing.T) {
	opts := DispatcherConfig{Workers: 2, RetryBackoffMS: 500, MaxDurationSeconds: 3}.Options()
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 500*time.Millisecond, opts.RetryBackoff)
	assert.Equal(t, 3*time.Second, opts.MaxDuration)
}

func TestNormalizeNil(t *testing.T) {
	assert.Error(t, Normalize(nil))
}
