// Package config loads application configuration from YAML and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DocAI    DocAIConfig    `mapstructure:"docai"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// StorageConfig holds uploaded file storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DocAIConfig holds Google Document AI configuration
type DocAIConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	Location    string `mapstructure:"location"`
	ProcessorID string `mapstructure:"processor_id"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkerConfig holds extraction queue worker configuration
type WorkerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
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

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

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

	// Database defaults
	viper.SetDefault("database.path", "data/invoices.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Storage defaults
	viper.SetDefault("storage.base_dir", "data/uploads")

	// Document AI defaults
	viper.SetDefault("docai.location", "us")

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.timeout", 60*time.Second)

	// Worker defaults
	viper.SetDefault("worker.poll_interval", 10*time.Second)
	viper.SetDefault("worker.batch_size", 5)
	viper.SetDefault("worker.max_attempts", 3)
	viper.SetDefault("worker.process_timeout", 120*time.Second)
	viper.SetDefault("worker.stage_timeout", 30*time.Second)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("docai.project_id", "GOOGLE_CLOUD_PROJECT_ID")
	viper.BindEnv("docai.location", "GOOGLE_CLOUD_LOCATION")
	viper.BindEnv("docai.processor_id", "DOCAI_PROCESSOR_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.DocAI.ProjectID == "" {
		return fmt.Errorf("docai.project_id is required")
	}
	if c.DocAI.ProcessorID == "" {
		return fmt.Errorf("docai.processor_id is required")
	}

	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be positive")
	}

	return nil
}
