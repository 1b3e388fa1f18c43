package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Forum  ForumConfig  `mapstructure:"forum"`
	Engine EngineConfig `mapstructure:"engine"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, "prod")
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ScoreSweep string `mapstructure:"score_sweep"`
}

// LLMConfig holds the static completion-service settings. Model, temperature
// and max_tokens act as fallbacks when the per-project dynamic config leaves
// them unset.
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
}

// ForumConfig is the static adapter configuration for the forum platform.
type ForumConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	APIUsername string        `mapstructure:"api_username"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FetchLimit  int           `mapstructure:"fetch_limit"`
}

type EngineConfig struct {
	DefaultSignal string `mapstructure:"default_signal"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.score_sweep", "0 0 2 * * *")
	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_content_chars", 12000)
	v.SetDefault("forum.base_url", "")
	v.SetDefault("forum.api_key", "")
	v.SetDefault("forum.api_username", "system")
	v.SetDefault("forum.timeout", "15s")
	v.SetDefault("forum.fetch_limit", 200)
	v.SetDefault("engine.default_signal", "forum_engagement")
}

// validate fails closed with every missing required field, not just the first.
func validate(cfg *Config) error {
	var missing []string
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		missing = append(missing, "db.dsn")
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key")
	}
	if strings.TrimSpace(cfg.Forum.BaseURL) == "" {
		missing = append(missing, "forum.base_url")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// MissingFieldsError aggregates every missing or invalid required field.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "config: missing required fields: " + strings.Join(e.Fields, ", ")
}
