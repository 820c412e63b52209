package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultAIProvider        = "gemini"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultAgentModel        = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 1024
	DefaultIdentityProvider  = "local"
	DefaultSessionTTLHours   = 24 * 7
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18790
	DefaultBufSize           = 100
	DefaultLettersDeliver    = "0 0 8 * * *"
	DefaultReportsRollup     = "0 55 23 * * *"
	DefaultLogLevel          = "info"
	DefaultLogMaxSizeMB      = 20
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
	DefaultAuthRatePerMinute = 10
	DefaultAuthBurst         = 5
	DefaultScheduleCacheSize = 256

	envPrefix = "SERENITY"
)

type Config struct {
	AI       AIConfig       `json:"ai"`
	Identity IdentityConfig `json:"identity"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Storage  StorageConfig  `json:"storage"`
	Jobs     JobsConfig     `json:"jobs"`
	API      APIConfig      `json:"api"`
	Log      LogConfig      `json:"log"`
}

type AIConfig struct {
	Provider  string `json:"provider"` // "gemini" (default), "anthropic" or "openai"
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

type IdentityConfig struct {
	Provider        string `json:"provider"` // "local" (default) or "firebase"
	FirebaseAPIKey  string `json:"firebaseApiKey,omitempty"`
	SessionTTLHours int    `json:"sessionTtlHours"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

// JobsConfig holds six-field cron expressions (with seconds).
type JobsConfig struct {
	LettersDeliver string `json:"lettersDeliver"`
	ReportsRollup  string `json:"reportsRollup"`
}

type APIConfig struct {
	AllowedOrigins    []string `json:"allowedOrigins"`
	AuthRatePerMinute int      `json:"authRatePerMinute"`
	AuthBurst         int      `json:"authBurst"`
	ScheduleCacheSize int      `json:"scheduleCacheSize"`
}

type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMb,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:  DefaultAIProvider,
			MaxTokens: DefaultMaxTokens,
		},
		Identity: IdentityConfig{
			Provider:        DefaultIdentityProvider,
			SessionTTLHours: DefaultSessionTTLHours,
		},
		Channels: ChannelsConfig{
			WebUI: WebUIConfig{Enabled: true},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Jobs: JobsConfig{
			LettersDeliver: DefaultLettersDeliver,
			ReportsRollup:  DefaultReportsRollup,
		},
		API: APIConfig{
			AllowedOrigins:    []string{"*"},
			AuthRatePerMinute: DefaultAuthRatePerMinute,
			AuthBurst:         DefaultAuthBurst,
			ScheduleCacheSize: DefaultScheduleCacheSize,
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".serenity")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DBPath is the configured database path or the default under ConfigDir.
func (c *Config) DBPath() string {
	if p := strings.TrimSpace(c.Storage.DBPath); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "data", "serenity.db")
}

// ModelName is the configured model or the provider default.
func (c *AIConfig) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == DefaultAIProvider {
		return DefaultGeminiModel
	}
	return DefaultAgentModel
}

// newEnv binds every supported environment override. Keys listed with
// several variables take the first one set.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("ai.provider")
	_ = v.BindEnv("ai.api_key")
	_ = v.BindEnv("ai.base_url")
	_ = v.BindEnv("ai.model")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN")
	_ = v.BindEnv("anthropic.base_url", "ANTHROPIC_BASE_URL")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("identity.provider")
	_ = v.BindEnv("firebase.api_key", "SERENITY_FIREBASE_API_KEY", "FIREBASE_WEB_API_KEY")
	_ = v.BindEnv("telegram.token")
	_ = v.BindEnv("host")
	_ = v.BindEnv("port")
	_ = v.BindEnv("db_path")
	_ = v.BindEnv("log.level")
	_ = v.BindEnv("log.file")
	return v
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg, newEnv())
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config, v *viper.Viper) {
	if p := v.GetString("ai.provider"); p != "" {
		cfg.AI.Provider = strings.ToLower(p)
	}
	if key := v.GetString("ai.api_key"); key != "" {
		cfg.AI.APIKey = key
	}
	// Vendor keys only fill an empty key; the first one found picks the provider
	// unless a provider was already chosen explicitly.
	vendors := []struct{ provider, key string }{
		{"gemini", v.GetString("gemini.api_key")},
		{"anthropic", v.GetString("anthropic.api_key")},
		{"openai", v.GetString("openai.api_key")},
	}
	if cfg.AI.APIKey == "" {
		for _, vd := range vendors {
			if vd.key != "" && (cfg.AI.Provider == vd.provider || cfg.AI.Provider == "") {
				cfg.AI.APIKey = vd.key
				break
			}
		}
	}
	if cfg.AI.APIKey == "" {
		for _, vd := range vendors {
			if vd.key != "" {
				cfg.AI.APIKey = vd.key
				cfg.AI.Provider = vd.provider
				break
			}
		}
	}
	if url := v.GetString("ai.base_url"); url != "" {
		cfg.AI.BaseURL = url
	}
	if url := v.GetString("anthropic.base_url"); url != "" && cfg.AI.BaseURL == "" && cfg.AI.Provider == "anthropic" {
		cfg.AI.BaseURL = url
	}
	if m := v.GetString("ai.model"); m != "" {
		cfg.AI.Model = m
	}

	if p := v.GetString("identity.provider"); p != "" {
		cfg.Identity.Provider = strings.ToLower(p)
	}
	if key := v.GetString("firebase.api_key"); key != "" {
		cfg.Identity.FirebaseAPIKey = key
	}
	if token := v.GetString("telegram.token"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if host := v.GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if port := v.GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if p := v.GetString("db_path"); p != "" {
		cfg.Storage.DBPath = p
	}
	if lvl := v.GetString("log.level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f := v.GetString("log.file"); f != "" {
		cfg.Log.File = f
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = def.AI.Provider
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = def.AI.MaxTokens
	}
	if cfg.Identity.Provider == "" {
		cfg.Identity.Provider = def.Identity.Provider
	}
	if cfg.Identity.SessionTTLHours <= 0 {
		cfg.Identity.SessionTTLHours = def.Identity.SessionTTLHours
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Jobs.LettersDeliver == "" {
		cfg.Jobs.LettersDeliver = def.Jobs.LettersDeliver
	}
	if cfg.Jobs.ReportsRollup == "" {
		cfg.Jobs.ReportsRollup = def.Jobs.ReportsRollup
	}
	if cfg.API.AuthRatePerMinute <= 0 {
		cfg.API.AuthRatePerMinute = def.API.AuthRatePerMinute
	}
	if cfg.API.AuthBurst <= 0 {
		cfg.API.AuthBurst = def.API.AuthBurst
	}
	if cfg.API.ScheduleCacheSize <= 0 {
		cfg.API.ScheduleCacheSize = def.API.ScheduleCacheSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file carries API keys.
	return os.WriteFile(ConfigPath(), data, 0600)
}
