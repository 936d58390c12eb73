package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Inventory InventoryConfig `yaml:"inventory"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// StorageConfig selects the ledger store implementation
// 台帳ストアの実装を選択
type StorageConfig struct {
	Driver string `yaml:"driver"` // postgres, memory
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// InventoryConfig holds ledger configuration
// 在庫台帳の設定を保持
type InventoryConfig struct {
	ShortfallPolicy   string `yaml:"shortfall_policy"`    // partial, reject
	StrictReject      bool   `yaml:"strict_reject"`       // 承認待ち以外の却下を禁止
	AverageCostMethod string `yaml:"average_cost_method"` // last_receipt, weighted
	ExpiringSoonDays  int    `yaml:"expiring_soon_days"`
	DefaultLocation   string `yaml:"default_location"`
	TimeZone          string `yaml:"time_zone"` // 伝票番号・本日集計の基準タイムゾーン
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, ファイルパス
}

// Default returns the built-in configuration
// 既定の設定を返す
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "inventory",
			Password:        "password",
			DBName:          "stock_ledger",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: "postgres",
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Inventory: InventoryConfig{
			ShortfallPolicy:   string(inventory.ShortfallPolicyPartial),
			StrictReject:      false,
			AverageCostMethod: string(inventory.AverageCostLastReceipt),
			ExpiringSoonDays:  30,
			DefaultLocation:   "MAIN",
			TimeZone:          "Local",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load loads configuration from .env, an optional YAML file (CONFIG_FILE) and environment variables.
// Later sources override earlier ones.
// .env、YAMLファイル、環境変数の順に設定を読み込み
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)

	c.API.Port = getEnvAsInt("API_PORT", c.API.Port)
	c.API.ReadTimeout = getEnvAsDuration("API_READ_TIMEOUT", c.API.ReadTimeout)
	c.API.WriteTimeout = getEnvAsDuration("API_WRITE_TIMEOUT", c.API.WriteTimeout)
	c.API.IdleTimeout = getEnvAsDuration("API_IDLE_TIMEOUT", c.API.IdleTimeout)
	c.API.EnableCORS = getEnvAsBool("API_ENABLE_CORS", c.API.EnableCORS)
	c.API.EnableMetrics = getEnvAsBool("API_ENABLE_METRICS", c.API.EnableMetrics)

	c.Inventory.ShortfallPolicy = getEnv("INVENTORY_SHORTFALL_POLICY", c.Inventory.ShortfallPolicy)
	c.Inventory.StrictReject = getEnvAsBool("INVENTORY_STRICT_REJECT", c.Inventory.StrictReject)
	c.Inventory.AverageCostMethod = getEnv("INVENTORY_AVERAGE_COST_METHOD", c.Inventory.AverageCostMethod)
	c.Inventory.ExpiringSoonDays = getEnvAsInt("INVENTORY_EXPIRING_SOON_DAYS", c.Inventory.ExpiringSoonDays)
	c.Inventory.DefaultLocation = getEnv("INVENTORY_DEFAULT_LOCATION", c.Inventory.DefaultLocation)
	c.Inventory.TimeZone = getEnv("INVENTORY_TIME_ZONE", c.Inventory.TimeZone)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// ストア設定チェック
	switch c.Storage.Driver {
	case "postgres":
		// データベース設定チェック
		if c.Database.Host == "" {
			return fmt.Errorf("データベースホストが指定されていません")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("データベースユーザーが指定されていません")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("データベース名が指定されていません")
		}
	case "memory":
	default:
		return fmt.Errorf("無効なストレージドライバー: %s", c.Storage.Driver)
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// 在庫設定チェック
	if !inventory.ShortfallPolicy(c.Inventory.ShortfallPolicy).IsValid() {
		return fmt.Errorf("無効なバッチ不足時ポリシー: %s", c.Inventory.ShortfallPolicy)
	}
	if !inventory.AverageCostMethod(c.Inventory.AverageCostMethod).IsValid() {
		return fmt.Errorf("無効な平均原価方式: %s", c.Inventory.AverageCostMethod)
	}
	if c.Inventory.ExpiringSoonDays <= 0 {
		return fmt.Errorf("期限切れ間近の日数は正の値である必要があります: %d", c.Inventory.ExpiringSoonDays)
	}
	if c.Inventory.DefaultLocation == "" {
		return fmt.Errorf("デフォルト保管場所が指定されていません")
	}
	if _, err := time.LoadLocation(c.Inventory.TimeZone); err != nil {
		return fmt.Errorf("無効なタイムゾーン: %s", c.Inventory.TimeZone)
	}

	// ログ設定チェック
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// LedgerConfig converts the inventory section into the ledger manager configuration
// 在庫設定を台帳マネージャーの設定に変換
func (c *Config) LedgerConfig() *inventory.Config {
	loc, err := time.LoadLocation(c.Inventory.TimeZone)
	if err != nil {
		loc = time.Local
	}
	return &inventory.Config{
		ShortfallPolicy:   inventory.ShortfallPolicy(c.Inventory.ShortfallPolicy),
		StrictReject:      c.Inventory.StrictReject,
		AverageCostMethod: inventory.AverageCostMethod(c.Inventory.AverageCostMethod),
		ExpiringSoonDays:  c.Inventory.ExpiringSoonDays,
		DefaultLocation:   c.Inventory.DefaultLocation,
		TimeZone:          loc,
		Now:               time.Now,
	}
}

// NewLogger builds a zap logger from the logging section
// ログ設定からzapロガーを作成
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル: %w", err)
	}

	var zc zap.Config
	if c.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.Logging.Output != "" {
		zc.OutputPaths = []string{c.Logging.Output}
	}

	return zc.Build()
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
// デフォルト値付きで環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
// デフォルト値付きで環境変数をbooleanとして取得
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
