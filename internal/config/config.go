package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Proxy        ProxyConfig        `mapstructure:"proxy"`
	Database     DatabaseConfig     `mapstructure:"database"`
	OAuth        OAuthConfig        `mapstructure:"oauth"`
	Gist         GistConfig         `mapstructure:"gist"`
	Autosave     AutosaveConfig     `mapstructure:"autosave"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Middleware   MiddlewareConfig   `mapstructure:"middleware"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ProxyConfig holds the OAuth2 exchange proxy configuration
type ProxyConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// OAuthConfig holds OAuth2 configuration. TokenURL is the provider's
// token endpoint and is only dialed by the proxy; the application talks
// to ExchangeURL instead and never sees the client secret.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Scope        string `mapstructure:"scope"`
	AuthorizeURL string `mapstructure:"authorize_url"`
	TokenURL     string `mapstructure:"token_url"`
	ExchangeURL  string `mapstructure:"exchange_url"`
	ValidateURL  string `mapstructure:"validate_url"`
}

// GistConfig holds the gist persistence backend configuration
type GistConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	Filename   string `mapstructure:"filename"`
}

// AutosaveConfig holds autosave configuration
type AutosaveConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// CompletionConfig holds AI completion configuration
type CompletionConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ConnectivityConfig holds connectivity monitor configuration
type ConnectivityConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// MiddlewareConfig holds channel bus configuration
type MiddlewareConfig struct {
	MaxTriggerDepth int `mapstructure:"max_trigger_depth"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Proxy defaults
	viper.SetDefault("proxy.host", "0.0.0.0")
	viper.SetDefault("proxy.port", 9000)
	viper.SetDefault("proxy.allowed_origin", "*")

	// Database defaults
	viper.SetDefault("database.path", "data/gistnote.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// OAuth defaults (GitHub)
	viper.SetDefault("oauth.scope", "gist")
	viper.SetDefault("oauth.authorize_url", "https://github.com/login/oauth/authorize")
	viper.SetDefault("oauth.token_url", "https://github.com/login/oauth/access_token")
	viper.SetDefault("oauth.exchange_url", "http://localhost:9000/exchange")
	viper.SetDefault("oauth.validate_url", "https://api.github.com/user")

	// Gist defaults
	viper.SetDefault("gist.api_base_url", "https://api.github.com")
	viper.SetDefault("gist.filename", "notebook.md")

	// Autosave defaults
	viper.SetDefault("autosave.delay", 3*time.Second)

	// Completion defaults
	viper.SetDefault("completion.model", "gpt-4")
	viper.SetDefault("completion.temperature", 0.3)
	viper.SetDefault("completion.max_tokens", 64)
	viper.SetDefault("completion.timeout", 15*time.Second)

	// Connectivity defaults
	viper.SetDefault("connectivity.probe_url", "https://api.github.com")
	viper.SetDefault("connectivity.probe_interval", 30*time.Second)

	// Middleware defaults
	viper.SetDefault("middleware.max_trigger_depth", 64)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("oauth.client_id", "GITHUB_CLIENT_ID")
	viper.BindEnv("oauth.client_secret", "GITHUB_CLIENT_SECRET")
	viper.BindEnv("completion.api_key", "OPENAI_API_KEY")
}

// Validate validates the configuration. OAuth credentials are not
// required: without them the application still runs against the local
// store only.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Gist.Filename == "" {
		return fmt.Errorf("gist.filename is required")
	}

	if c.Autosave.Delay <= 0 {
		return fmt.Errorf("autosave.delay must be positive")
	}

	if c.Middleware.MaxTriggerDepth <= 0 {
		return fmt.Errorf("middleware.max_trigger_depth must be positive")
	}

	return nil
}
