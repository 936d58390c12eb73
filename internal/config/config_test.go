package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "partial", cfg.Inventory.ShortfallPolicy)
	assert.Equal(t, 30, cfg.Inventory.ExpiringSoonDays)
	assert.Equal(t, "MAIN", cfg.Inventory.DefaultLocation)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("API_PORT", "9090")
	t.Setenv("API_READ_TIMEOUT", "5s")
	t.Setenv("INVENTORY_SHORTFALL_POLICY", "reject")
	t.Setenv("INVENTORY_STRICT_REJECT", "true")
	t.Setenv("INVENTORY_EXPIRING_SOON_DAYS", "14")
	t.Setenv("INVENTORY_TIME_ZONE", "Asia/Tokyo")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, "reject", cfg.Inventory.ShortfallPolicy)
	assert.True(t, cfg.Inventory.StrictReject)
	assert.Equal(t, 14, cfg.Inventory.ExpiringSoonDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("API_PORT", "eighty")
	t.Setenv("INVENTORY_STRICT_REJECT", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.False(t, cfg.Inventory.StrictReject)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := `
storage:
  driver: memory
api:
  port: 7070
inventory:
  average_cost_method: weighted
  expiring_soon_days: 45
  default_location: KITCHEN
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("API_PORT", "")
	t.Setenv("INVENTORY_DEFAULT_LOCATION", "COLD")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, "weighted", cfg.Inventory.AverageCostMethod)
	assert.Equal(t, 45, cfg.Inventory.ExpiringSoonDays)
	assert.Equal(t, "COLD", cfg.Inventory.DefaultLocation, "環境変数がファイルより優先される")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "partial", cfg.Inventory.ShortfallPolicy, "未指定の項目は既定値のまま")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"empty db host", func(c *Config) { c.Database.Host = "" }},
		{"bad db port", func(c *Config) { c.Database.Port = 70000 }},
		{"bad api port", func(c *Config) { c.API.Port = 0 }},
		{"shortfall policy", func(c *Config) { c.Inventory.ShortfallPolicy = "block" }},
		{"cost method", func(c *Config) { c.Inventory.AverageCostMethod = "fifo" }},
		{"expiring days", func(c *Config) { c.Inventory.ExpiringSoonDays = 0 }},
		{"location", func(c *Config) { c.Inventory.DefaultLocation = "" }},
		{"time zone", func(c *Config) { c.Inventory.TimeZone = "Mars/Olympus" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("memory skips database checks", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = "memory"
		cfg.Database.Host = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestLedgerConfig(t *testing.T) {
	cfg := Default()
	cfg.Inventory.ShortfallPolicy = "reject"
	cfg.Inventory.StrictReject = true
	cfg.Inventory.AverageCostMethod = "weighted"
	cfg.Inventory.TimeZone = "UTC"

	ledger := cfg.LedgerConfig()
	assert.Equal(t, inventory.ShortfallPolicyReject, ledger.ShortfallPolicy)
	assert.True(t, ledger.StrictReject)
	assert.Equal(t, inventory.AverageCostWeighted, ledger.AverageCostMethod)
	assert.Equal(t, 30, ledger.ExpiringSoonDays)
	assert.Equal(t, "MAIN", ledger.DefaultLocation)
	assert.Equal(t, time.UTC, ledger.TimeZone)
	require.NotNil(t, ledger.Now)
}

func TestDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "host=localhost port=5432 user=inventory password=password dbname=stock_ledger sslmode=disable", cfg.DSN())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Output = "stderr"

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Logging.Format = "console"
	cfg.Logging.Level = "debug"
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg.Logging.Level = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
