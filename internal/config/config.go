// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit int           `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
	CORS      CORSConfig    `yaml:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// OptimizerConfig 优化引擎配置
type OptimizerConfig struct {
	MaxProcessingTimeSeconds int     `yaml:"max_processing_time_seconds"` // 5-60
	CostCoverageBalance      float64 `yaml:"cost_coverage_balance"`       // 0.0-1.0
	PatternComplexityLevel   int     `yaml:"pattern_complexity_level"`    // 1-5
	CandidateCap             int     `yaml:"candidate_cap"`
	TopN                     int     `yaml:"top_n"`
	BusinessContext          string  `yaml:"business_context"`
}

// TimeBudget 返回处理时间预算
func (c *OptimizerConfig) TimeBudget() time.Duration {
	return time.Duration(c.MaxProcessingTimeSeconds) * time.Second
}

// Validate 校验优化引擎配置边界
func (c *OptimizerConfig) Validate() error {
	if c.MaxProcessingTimeSeconds < 5 || c.MaxProcessingTimeSeconds > 60 {
		return fmt.Errorf("max_processing_time_seconds 必须在5-60之间，当前为 %d", c.MaxProcessingTimeSeconds)
	}
	if c.CostCoverageBalance < 0 || c.CostCoverageBalance > 1 {
		return fmt.Errorf("cost_coverage_balance 必须在0.0-1.0之间，当前为 %.2f", c.CostCoverageBalance)
	}
	if c.PatternComplexityLevel < 1 || c.PatternComplexityLevel > 5 {
		return fmt.Errorf("pattern_complexity_level 必须在1-5之间，当前为 %d", c.PatternComplexityLevel)
	}
	if c.CandidateCap <= 0 {
		return fmt.Errorf("candidate_cap 必须为正数，当前为 %d", c.CandidateCap)
	}
	return nil
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 从环境变量加载配置
// 设置 CONFIG_FILE 时先读取 YAML 文件，环境变量覆盖文件值
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Optimizer.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:     "youpai",
			Env:      "development",
			Port:     7014,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "youpai",
			User:            "youpai",
			Password:        "youpai123",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		API: APIConfig{
			RateLimit: 100,
			Timeout:   30 * time.Second,
			CORS:      CORSConfig{Enabled: true, Origins: []string{"*"}},
		},
		Optimizer: OptimizerConfig{
			MaxProcessingTimeSeconds: 30,
			CostCoverageBalance:      0.5,
			PatternComplexityLevel:   3,
			CandidateCap:             200,
			TopN:                     10,
			BusinessContext:          "general",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func applyEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Port = getEnvInt("APP_PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("APP_LOG_LEVEL", cfg.App.LogLevel)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.API.RateLimit = getEnvInt("API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.Timeout = getEnvDuration("API_TIMEOUT", cfg.API.Timeout)
	cfg.API.CORS.Enabled = getEnvBool("API_CORS_ENABLED", cfg.API.CORS.Enabled)

	cfg.Optimizer.MaxProcessingTimeSeconds = getEnvInt("OPTIMIZER_MAX_PROCESSING_SECONDS", cfg.Optimizer.MaxProcessingTimeSeconds)
	cfg.Optimizer.CostCoverageBalance = getEnvFloat("OPTIMIZER_COST_COVERAGE_BALANCE", cfg.Optimizer.CostCoverageBalance)
	cfg.Optimizer.PatternComplexityLevel = getEnvInt("OPTIMIZER_PATTERN_COMPLEXITY", cfg.Optimizer.PatternComplexityLevel)
	cfg.Optimizer.CandidateCap = getEnvInt("OPTIMIZER_CANDIDATE_CAP", cfg.Optimizer.CandidateCap)
	cfg.Optimizer.TopN = getEnvInt("OPTIMIZER_TOP_N", cfg.Optimizer.TopN)
	cfg.Optimizer.BusinessContext = getEnv("OPTIMIZER_BUSINESS_CONTEXT", cfg.Optimizer.BusinessContext)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = getEnv("METRICS_PATH", cfg.Metrics.Path)
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
