// Package config 服務設定
//
// 載入順序（後者覆蓋前者）：
//  1. DefaultConfig()
//  2. YAML 檔案
//  3. .env 與環境變數（DATABASE_URL, REDIS_ADDR, NATS_URL, HTTP_PORT, LOG_LEVEL）
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/events"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"gopkg.in/yaml.v3"
)

// 儲存後端
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config 整個服務的設定
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  string         `yaml:"storage"` // memory | postgres
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Match    match.Config   `yaml:"match"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP 服務設定
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // 空值表示不檢查 Origin
}

// PostgresConfig PostgreSQL 設定
type PostgresConfig struct {
	URL      string `yaml:"url"` // 設定時優先於個別欄位
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// RedisConfig 結果暫存佇列設定（Enabled 為 false 時主要儲存失敗就直接遺失）
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	SpoolKey       string        `yaml:"spool_key"`
	ReplayInterval time.Duration `yaml:"replay_interval"`
}

// NATSConfig 事件發布設定
type NATSConfig struct {
	Enabled       bool `yaml:"enabled"`
	events.Config `yaml:",inline"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig 預設設定（單機、記憶體儲存）
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageMemory,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "pong",
			Password: "pong",
			DBName:   "pong",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			SpoolKey:       "pong:results:spool",
			ReplayInterval: 30 * time.Second,
		},
		NATS: NATSConfig{
			Config: events.Config{
				URL:           "nats://localhost:4222",
				SubjectPrefix: events.DefaultSubjectPrefix,
				ReconnectWait: 2 * time.Second,
				PingInterval:  20 * time.Second,
			},
		},
		Match: match.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load 載入設定
//
// path 為空時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env 不存在是正常情況（生產環境直接注入環境變數）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋
func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
		c.Storage = StoragePostgres
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT 無效: %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate 驗證設定
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port 無效: %d", c.Server.Port)
	}
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("storage 必須是 memory 或 postgres: %q", c.Storage)
	}
	if c.Redis.Enabled {
		if c.Storage != StoragePostgres {
			return fmt.Errorf("redis 暫存佇列只在 storage: postgres 時有意義")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr 不能為空")
		}
		if c.Redis.ReplayInterval <= 0 {
			return fmt.Errorf("redis.replay_interval 必須大於 0")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url 不能為空")
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	return nil
}

// Addr HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
	)
}
