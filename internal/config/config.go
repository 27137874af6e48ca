package config

import (
	"fmt"
	"strings"

	"github.com/garagebot/affiliate-ledger/internal/constants"
	"github.com/garagebot/affiliate-ledger/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	UserJWT   JWTConfig       `mapstructure:"user_jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Affiliate AffiliateConfig `mapstructure:"affiliate"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release

	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
	ReadTimeoutSeconds       int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds      int `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds       int `mapstructure:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds   int `mapstructure:"shutdown_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Stdout     bool   `mapstructure:"stdout"`
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
		Format:     c.Format,
		Stdout:     c.Stdout,
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
	Driver   string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN      string             `mapstructure:"dsn"`    // 数据库连接串
	LogLevel string             `mapstructure:"log_level"`
	Pool     DatabasePoolConfig `mapstructure:"pool"`
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
	MaxRetry    int            `mapstructure:"max_retry"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit  RateLimitConfig `mapstructure:"login_rate_limit"`
	PayoutRateLimit RateLimitConfig `mapstructure:"payout_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// WebhookConfig 上游事件回调配置
type WebhookConfig struct {
	Secret           string `mapstructure:"secret"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
	StripeSecret     string `mapstructure:"stripe_secret"`
}

// AffiliateConfig 推广账本配置
type AffiliateConfig struct {
	QualificationThreshold string           `mapstructure:"qualification_threshold"`
	PayoutThreshold        string           `mapstructure:"payout_threshold"`
	CommissionRatePercent  string           `mapstructure:"commission_rate_percent"`
	ProBonusAmount         string           `mapstructure:"pro_bonus_amount"`
	ProRecurringAmount     string           `mapstructure:"pro_recurring_amount"`
	CrossingPurchasePolicy string           `mapstructure:"crossing_purchase_policy"`
	ReferredRevenueMode    string           `mapstructure:"referred_revenue_mode"`
	ShareBaseURL           string           `mapstructure:"share_base_url"`
	ReconcileCron          string           `mapstructure:"reconcile_cron"`
	HandoffCacheSeconds    int              `mapstructure:"handoff_cache_seconds"`
	TrustLayer             TrustLayerConfig `mapstructure:"trust_layer"`
}

// TrustLayerConfig 生态身份交接配置
type TrustLayerConfig struct {
	Schema    string `mapstructure:"schema"`
	Source    string `mapstructure:"source"`
	Ecosystem string `mapstructure:"ecosystem"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 注册默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.level", "")
	v.SetDefault("log.format", "")
	v.SetDefault("log.stdout", false)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "affiliate-ledger.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/affiliate.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gb")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 10)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault:  10,
		constants.QueueCritical: 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Accept-Language",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_attempts", 5)
	v.SetDefault("security.login_rate_limit.block_seconds", 900)
	v.SetDefault("security.payout_rate_limit.window_seconds", 60)
	v.SetDefault("security.payout_rate_limit.max_attempts", 3)
	v.SetDefault("security.payout_rate_limit.block_seconds", 300)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.tolerance_seconds", 300)
	v.SetDefault("webhook.stripe_secret", "")
	v.SetDefault("affiliate.qualification_threshold", constants.QualificationThresholdUSD)
	v.SetDefault("affiliate.payout_threshold", constants.PayoutThresholdUSD)
	v.SetDefault("affiliate.commission_rate_percent", constants.CommissionRatePercent)
	v.SetDefault("affiliate.pro_bonus_amount", constants.ProBonusUSD)
	v.SetDefault("affiliate.pro_recurring_amount", constants.ProRecurringUSD)
	v.SetDefault("affiliate.crossing_purchase_policy", constants.CrossingPurchaseInclude)
	v.SetDefault("affiliate.referred_revenue_mode", constants.ReferredRevenueModeAll)
	v.SetDefault("affiliate.share_base_url", "https://garagebot.io/")
	v.SetDefault("affiliate.reconcile_cron", "0 3 * * *")
	v.SetDefault("affiliate.handoff_cache_seconds", 60)
	v.SetDefault("affiliate.trust_layer.schema", "darkwave-trust-layer-v1")
	v.SetDefault("affiliate.trust_layer.source", "garagebot")
	v.SetDefault("affiliate.trust_layer.ecosystem", "darkwave")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持，例如 affiliate.payout_threshold -> AFFILIATE_PAYOUT_THRESHOLD
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

	cfg, err := Decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(err)
	}
	return cfg
}

// Decode 解析并校验配置
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("配置解析失败: %w", err)
	}
	if err := cfg.Affiliate.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验推广规则配置
func (c AffiliateConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.CrossingPurchasePolicy)) {
	case "", constants.CrossingPurchaseInclude, constants.CrossingPurchaseExclude, constants.CrossingPurchaseProrate:
	default:
		return fmt.Errorf("invalid affiliate.crossing_purchase_policy: %s", c.CrossingPurchasePolicy)
	}
	switch strings.ToLower(strings.TrimSpace(c.ReferredRevenueMode)) {
	case "", constants.ReferredRevenueModeAll, constants.ReferredRevenueModeQualified:
	default:
		return fmt.Errorf("invalid affiliate.referred_revenue_mode: %s", c.ReferredRevenueMode)
	}
	return nil
}
