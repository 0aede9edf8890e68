package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// APIConfig holds the upstream catch API settings.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// QueryConfig configures per-cell query behavior.
type QueryConfig struct {
	PageSize       int     `yaml:"page_size" mapstructure:"page_size"`
	MaxPages       int     `yaml:"max_pages" mapstructure:"max_pages"`
	SplitThreshold int     `yaml:"split_threshold" mapstructure:"split_threshold"`
	MaxSplitDepth  int     `yaml:"max_split_depth" mapstructure:"max_split_depth"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// CollectConfig configures the collection run.
type CollectConfig struct {
	Workers int  `yaml:"workers" mapstructure:"workers"`
	KeepRaw bool `yaml:"keep_raw" mapstructure:"keep_raw"`
}

// OutputConfig configures run artifacts written to the workspace.
type OutputConfig struct {
	Workspace string `yaml:"workspace" mapstructure:"workspace"`
	CSV       bool   `yaml:"csv" mapstructure:"csv"`
	XLSX      bool   `yaml:"xlsx" mapstructure:"xlsx"`
	Shapefile bool   `yaml:"shapefile" mapstructure:"shapefile"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode.
// Modes correspond to the top-level commands that need more than defaults:
// "collect", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Query.PageSize < 1 || c.Query.PageSize > 50 {
		problems = append(problems, "query.page_size must be between 1 and 50")
	}
	if c.Query.RateLimit <= 0 {
		problems = append(problems, "query.rate_limit must be > 0")
	}
	if c.Collect.Workers < 1 || c.Collect.Workers > 64 {
		problems = append(problems, "collect.workers must be between 1 and 64")
	}

	switch mode {
	case "collect":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "none":
		default:
			problems = append(problems, "store.driver must be sqlite, postgres, or none")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATCHGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "https://rutilus.fishbrain.com/graphql")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("query.page_size", 50)
	v.SetDefault("query.max_pages", 400)
	v.SetDefault("query.split_threshold", 10000)
	v.SetDefault("query.max_split_depth", 5)
	v.SetDefault("query.rate_limit", 4)
	v.SetDefault("query.max_retries", 5)
	v.SetDefault("collect.workers", 4)
	v.SetDefault("output.workspace", ".")
	v.SetDefault("output.csv", true)
	v.SetDefault("output.shapefile", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "catchgrid.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
