package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Weather    WeatherConfig
	Clock      ClockConfig
	Storage    StorageConfig
	Persona    PersonaConfig
	Admin      AdminConfig
	Log        LogConfig
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WeatherConfig holds the OpenWeatherMap configuration
type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ClockConfig holds the timezone used by the getCurrentTime tool
type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// StorageConfig holds the transcript database configuration
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// PersonaConfig selects where persona overrides are kept
type PersonaConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisURL  string `mapstructure:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix"`
	GlobalKey string `mapstructure:"global_key"`
}

// AdminConfig holds the shared secret guarding the admin endpoints
type AdminConfig struct {
	Secret string `mapstructure:"secret"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RateLimitConfig bounds POST /chat per client IP
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MCPServerConfig describes one MCP server whose tools are exposed to the model
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// ClientType is the MCP transport
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

const envPrefix = "GUSTAVO"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// covers chat send, weather, a failed tool-result send and the fallback, each bounded by llm.timeout
	v.SetDefault("server.write_timeout", 240*time.Second)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.9)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/2.5/weather")
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.timeout", 10*time.Second)

	v.SetDefault("clock.timezone", "America/Sao_Paulo")

	v.SetDefault("storage.sqlite_path", "history.db")

	v.SetDefault("persona.backend", "sqlite")
	v.SetDefault("persona.redis_url", "redis://localhost:6379/0")
	v.SetDefault("persona.key_prefix", "gustavo:persona:")
	v.SetDefault("persona.global_key", "global")

	v.SetDefault("admin.secret", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)
}

// legacy variable names used by earlier deployments
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.api_key", envPrefix+"_LLM_API_KEY", "GEMINI_APIKEY", "GEMINI_API_KEY")
	_ = v.BindEnv("weather.api_key", envPrefix+"_WEATHER_API_KEY", "OPENWEATHER_API_KEY")
	_ = v.BindEnv("admin.secret", envPrefix+"_ADMIN_SECRET", "ADMIN_SECRET")
	_ = v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT")
}

// Load loads the configuration from config.yaml (or CONFIG_PATH) and the environment.
// A missing config file is not an error; defaults and environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
