package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Redis      RedisConfig
	AI         AIConfig
	Assessment AssessmentConfig `mapstructure:"assessment"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig points at an OpenAI-compatible chat completions endpoint (Groq, OpenAI, ...).
type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AssessmentConfig holds the certification test policy.
type AssessmentConfig struct {
	CooldownHours         int     `mapstructure:"cooldown_hours"`
	TimeLimitMinutes      int     `mapstructure:"time_limit_minutes"`
	PassingScore          int     `mapstructure:"passing_score"`
	ContentBudget         int     `mapstructure:"content_budget"`
	MinQuestions          int     `mapstructure:"min_questions"`
	GenerationTemperature float64 `mapstructure:"generation_temperature"`
	EvaluationTemperature float64 `mapstructure:"evaluation_temperature"`
}

func (c AssessmentConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

type JobsConfig struct {
	ViewFlushSpec string `mapstructure:"view_flush_spec"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Defaults mirrors the certification policy: 24h cooldown, 180 minutes, 80% to pass.
func Defaults() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Mode: "debug"},
		Database: DatabaseConfig{Driver: "mysql", Charset: "utf8mb4", ParseTime: true},
		AI: AIConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "llama-3.3-70b-versatile",
			TimeoutSeconds: 120,
			MaxTokens:      8000,
		},
		Assessment: AssessmentConfig{
			CooldownHours:         24,
			TimeLimitMinutes:      180,
			PassingScore:          80,
			ContentBudget:         10000,
			MinQuestions:          10,
			GenerationTemperature: 0.3,
			EvaluationTemperature: 0.2,
		},
		Jobs:      JobsConfig{ViewFlushSpec: "@every 1m"},
		RateLimit: RateLimitConfig{MaxRequests: 600, WindowMinutes: 1},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.charset", d.Database.Charset)
	v.SetDefault("database.parsetime", d.Database.ParseTime)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.timeout_seconds", d.AI.TimeoutSeconds)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("assessment.cooldown_hours", d.Assessment.CooldownHours)
	v.SetDefault("assessment.time_limit_minutes", d.Assessment.TimeLimitMinutes)
	v.SetDefault("assessment.passing_score", d.Assessment.PassingScore)
	v.SetDefault("assessment.content_budget", d.Assessment.ContentBudget)
	v.SetDefault("assessment.min_questions", d.Assessment.MinQuestions)
	v.SetDefault("assessment.generation_temperature", d.Assessment.GenerationTemperature)
	v.SetDefault("assessment.evaluation_temperature", d.Assessment.EvaluationTemperature)
	v.SetDefault("jobs.view_flush_spec", d.Jobs.ViewFlushSpec)
	v.SetDefault("rate_limit.max_requests", d.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window_minutes", d.RateLimit.WindowMinutes)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PREPCOURSE")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// AI
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Assessment.PassingScore < 0 || c.Assessment.PassingScore > 100 {
		return fmt.Errorf("assessment.passing_score must be within [0,100], got %d", c.Assessment.PassingScore)
	}
	if c.Assessment.CooldownHours < 0 {
		return fmt.Errorf("assessment.cooldown_hours must not be negative")
	}
	return nil
}
