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
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Postal   PostalConfig   `yaml:"postal" mapstructure:"postal"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Filter   FilterConfig   `yaml:"filter" mapstructure:"filter"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
}

// HTTPConfig holds shared HTTP client settings.
type HTTPConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// GeocodeConfig configures the Kartverket address lookup client.
type GeocodeConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CachePath         string  `yaml:"cache_path" mapstructure:"cache_path"`
	FlushEvery        int     `yaml:"flush_every" mapstructure:"flush_every"`
}

// RegistryConfig configures the Enhetsregisteret detail API client.
type RegistryConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CachePath         string  `yaml:"cache_path" mapstructure:"cache_path"`
	FlushEvery        int     `yaml:"flush_every" mapstructure:"flush_every"`
}

// PostalConfig configures the postal code coordinate table.
type PostalConfig struct {
	Path   string  `yaml:"path" mapstructure:"path"`
	Margin float64 `yaml:"margin" mapstructure:"margin"`
}

// DataConfig holds paths and source URLs for the bulk registry exports.
type DataConfig struct {
	EnheterPath      string `yaml:"enheter_path" mapstructure:"enheter_path"`
	UnderenheterPath string `yaml:"underenheter_path" mapstructure:"underenheter_path"`
	EnheterURL       string `yaml:"enheter_url" mapstructure:"enheter_url"`
	UnderenheterURL  string `yaml:"underenheter_url" mapstructure:"underenheter_url"`
	PostalURL        string `yaml:"postal_url" mapstructure:"postal_url"`
}

// FilterConfig holds the employee count bounds for candidate selection.
type FilterConfig struct {
	MinEmployees int `yaml:"min_employees" mapstructure:"min_employees"`
	MaxEmployees int `yaml:"max_employees" mapstructure:"max_employees"`
}

// ScoringConfig configures potential scoring.
type ScoringConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
	Variant   string `yaml:"variant" mapstructure:"variant"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig configures where result files are written.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.user_agent", "prospect-cli/1.0")
	v.SetDefault("http.max_retries", 4)
	v.SetDefault("geocode.base_url", "https://ws.geonorge.no/adresser/v1")
	v.SetDefault("geocode.requests_per_second", 10)
	v.SetDefault("geocode.cache_path", "data/geocode_cache.json")
	v.SetDefault("geocode.flush_every", 20)
	v.SetDefault("registry.base_url", "https://data.brreg.no/enhetsregisteret/api")
	v.SetDefault("registry.requests_per_second", 2)
	v.SetDefault("registry.cache_path", "data/company_cache.json")
	v.SetDefault("registry.flush_every", 20)
	v.SetDefault("postal.path", "data/postnummer.txt")
	v.SetDefault("postal.margin", 0.05)
	v.SetDefault("data.enheter_path", "data/enheter.csv.gz")
	v.SetDefault("data.underenheter_path", "data/underenheter.csv.gz")
	v.SetDefault("data.enheter_url", "https://data.brreg.no/enhetsregisteret/api/enheter/lastned/csv")
	v.SetDefault("data.underenheter_url", "https://data.brreg.no/enhetsregisteret/api/underenheter/lastned/csv")
	v.SetDefault("filter.min_employees", 20)
	v.SetDefault("filter.max_employees", 200)
	v.SetDefault("scoring.variant", "research")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/prospect.db")
	v.SetDefault("output.dir", "output")

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

// Validate checks that the configuration is usable for the given command
// mode. Mode is one of "filter", "enrich", "fetch" or "runs".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Filter.MinEmployees < 0 {
		problems = append(problems, "filter.min_employees must be >= 0")
	}
	if c.Filter.MaxEmployees < c.Filter.MinEmployees {
		problems = append(problems, "filter.max_employees must be >= filter.min_employees")
	}
	if c.Postal.Margin < 0 {
		problems = append(problems, "postal.margin must be >= 0")
	}
	if c.Geocode.RequestsPerSecond <= 0 {
		problems = append(problems, "geocode.requests_per_second must be > 0")
	}
	if c.Registry.RequestsPerSecond <= 0 {
		problems = append(problems, "registry.requests_per_second must be > 0")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "filter":
		if c.Data.EnheterPath == "" {
			problems = append(problems, "data.enheter_path is required")
		}
		if c.Postal.Path == "" {
			problems = append(problems, "postal.path is required")
		}
		if c.Geocode.BaseURL == "" {
			problems = append(problems, "geocode.base_url is required")
		}
	case "enrich":
		if c.Registry.BaseURL == "" {
			problems = append(problems, "registry.base_url is required")
		}
	case "fetch":
		if c.Data.EnheterURL == "" && c.Data.UnderenheterURL == "" && c.Data.PostalURL == "" {
			problems = append(problems, "at least one of data.enheter_url, data.underenheter_url or data.postal_url is required")
		}
	case "runs":
		// Ledger settings are validated above.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
