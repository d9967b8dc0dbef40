package config

import (
	"fmt"
	"strings"

	"github.com/bazaar-next/internal/constants"
	"github.com/bazaar-next/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	UserJWT   JWTConfig       `mapstructure:"user_jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Order     OrderConfig     `mapstructure:"order"`
	GroupBuy  GroupBuyConfig  `mapstructure:"group_buy"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// OrderConfig 订单配置
type OrderConfig struct {
	PaymentExpireMinutes  int    `mapstructure:"payment_expire_minutes"`
	ShippingFee           string `mapstructure:"shipping_fee"`
	FreeShippingThreshold string `mapstructure:"free_shipping_threshold"`
}

// ShippingFeeDecimal 运费，配置非法时回退默认值
func (c OrderConfig) ShippingFeeDecimal() decimal.Decimal {
	return parseDecimalOrDefault(c.ShippingFee, constants.DefaultShippingFee)
}

// FreeShippingThresholdDecimal 包邮门槛，配置非法时回退默认值
func (c OrderConfig) FreeShippingThresholdDecimal() decimal.Decimal {
	return parseDecimalOrDefault(c.FreeShippingThreshold, constants.DefaultFreeShippingThreshold)
}

// GroupBuyConfig 拼团配置
type GroupBuyConfig struct {
	DurationHours        int `mapstructure:"duration_hours"`
	DefaultMinPeople     int `mapstructure:"default_min_people"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// PaymentConfig 支付回调配置
type PaymentConfig struct {
	IdempotencyTTLSeconds int                   `mapstructure:"idempotency_ttl_seconds"`
	Mbank                 PaymentProviderConfig `mapstructure:"mbank"`
	Elsom                 PaymentProviderConfig `mapstructure:"elsom"`
	Odengi                PaymentProviderConfig `mapstructure:"odengi"`
}

// PaymentProviderConfig 单个支付提供方配置
type PaymentProviderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	FlashSale RateLimitRule `mapstructure:"flash_sale"`
}

// RateLimitRule 单条限流规则
type RateLimitRule struct {
	Enabled       bool `mapstructure:"enabled"`
	WindowSeconds int  `mapstructure:"window_seconds"`
	MaxRequests   int  `mapstructure:"max_requests"`
	BlockSeconds  int  `mapstructure:"block_seconds"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func parseDecimalOrDefault(raw, fallback string) decimal.Decimal {
	if value, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil && !value.IsNegative() {
		return value
	}
	return decimal.RequireFromString(fallback)
}

// SetDefaults 注册全部默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/bazaar.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "bz")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault:  10,
		constants.QueueCritical: 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("order.payment_expire_minutes", 15)
	v.SetDefault("order.shipping_fee", constants.DefaultShippingFee)
	v.SetDefault("order.free_shipping_threshold", constants.DefaultFreeShippingThreshold)
	v.SetDefault("group_buy.duration_hours", constants.DefaultGroupBuyDurationHours)
	v.SetDefault("group_buy.default_min_people", constants.DefaultGroupBuyMinPeople)
	v.SetDefault("group_buy.sweep_interval_seconds", 60)
	v.SetDefault("payment.idempotency_ttl_seconds", 86400)
	v.SetDefault("payment.mbank.enabled", true)
	v.SetDefault("payment.mbank.secret", "")
	v.SetDefault("payment.elsom.enabled", true)
	v.SetDefault("payment.elsom.secret", "")
	v.SetDefault("payment.odengi.enabled", true)
	v.SetDefault("payment.odengi.secret", "")
	v.SetDefault("rate_limit.flash_sale.enabled", true)
	v.SetDefault("rate_limit.flash_sale.window_seconds", 10)
	v.SetDefault("rate_limit.flash_sale.max_requests", 5)
	v.SetDefault("rate_limit.flash_sale.block_seconds", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从 .env、config.yml 与环境变量加载配置
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		logger.Infow("dotenv_loaded", "file", ".env")
	}

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持，server.port -> SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(err)
	}
	return cfg
}

// Unmarshal 将 viper 实例解析为配置结构
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}
	return &cfg, nil
}
