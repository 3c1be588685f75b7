package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vessel/internal/database"
	"github.com/vessel/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. VESSEL_DATABASE_DSN sets
// database.dsn.
const EnvPrefix = "VESSEL_"

// Config represents the application configuration
type Config struct {
	General struct {
		LogLevel  string `koanf:"log_level"`
		LogFormat string `koanf:"log_format"`
	} `koanf:"general"`

	Database struct {
		Driver         string `koanf:"driver"`
		DSN            string `koanf:"dsn"`
		ConnectRetries int    `koanf:"connect_retries"`
	} `koanf:"database"`

	Server struct {
		Port      int     `koanf:"port"`
		RateLimit float64 `koanf:"rate_limit"` // requests per second per client, 0 disables
		Burst     int     `koanf:"burst"`
	} `koanf:"server"`

	Assembly struct {
		CharsPerToken      float64 `koanf:"chars_per_token"`
		DeviationThreshold float64 `koanf:"deviation_threshold"`
	} `koanf:"assembly"`

	Screening struct {
		Enabled            bool    `koanf:"enabled"`
		InjectionThreshold float64 `koanf:"injection_threshold"`
		Secrets            bool    `koanf:"secrets"`
	} `koanf:"screening"`

	Capture struct {
		Enabled bool   `koanf:"enabled"`
		Dir     string `koanf:"dir"`
	} `koanf:"capture"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"general.log_level":             "info",
		"general.log_format":            logging.FormatConsole,
		"database.driver":               "sqlite",
		"database.dsn":                  "vessel.db",
		"database.connect_retries":      3,
		"server.port":                   8888,
		"server.rate_limit":             20.0,
		"server.burst":                  40,
		"assembly.chars_per_token":      4.0,
		"assembly.deviation_threshold":  0.25,
		"screening.enabled":             true,
		"screening.injection_threshold": 0.7,
		"screening.secrets":             true,
		"capture.enabled":               false,
		"capture.dir":                   "captures",
	}
}

// DefaultPaths are searched, in order, when no config path is given.
var DefaultPaths = []string{"./vessel.toml", "./data/vessel.toml", "$HOME/.vessel.toml"}

// Load merges defaults, the TOML file and VESSEL_ environment overrides.
// With an empty path the first readable file in DefaultPaths is used.
func Load(configPath string) (*koanf.Koanf, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// VESSEL_SECTION_SOME_KEY -> section.some_key
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}
	return k, nil
}

// Decode unmarshals a merged koanf tree into a Config.
func Decode(k *koanf.Koanf) (*Config, error) {
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &config, nil
}

// Dump renders the merged tree as TOML.
func Dump(k *koanf.Koanf) ([]byte, error) {
	return k.Marshal(toml.Parser())
}

// LoadConfig is Load followed by Decode.
func LoadConfig(configPath string) (*Config, error) {
	k, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	return Decode(k)
}

const sampleConfig = `# Vessel configuration

[general]
log_level = "info"      # trace, debug, info, warn, error
log_format = "console"  # console or json

[database]
driver = "sqlite"       # sqlite or postgres
dsn = "vessel.db"       # for postgres, leave empty to use DATABASE_URL or .env
connect_retries = 3

[server]
port = 8888
rate_limit = 20.0
burst = 40

[assembly]
chars_per_token = 4.0
deviation_threshold = 0.25

[screening]
enabled = true
injection_threshold = 0.7
secrets = true

[capture]
enabled = false
dir = "captures"
`

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}
	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if _, err := logging.ParseLevel(config.General.LogLevel); err != nil {
		return err
	}
	switch config.General.LogFormat {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log_format must be %q or %q", logging.FormatConsole, logging.FormatJSON)
	}

	dialect, err := database.ParseDialect(config.Database.Driver)
	if err != nil {
		return err
	}
	if dialect == database.SQLite && strings.TrimSpace(config.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required for sqlite")
	}
	if config.Database.ConnectRetries < 0 {
		return fmt.Errorf("database connect_retries must not be negative")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}
	if config.Server.RateLimit < 0 {
		return fmt.Errorf("server rate_limit must not be negative")
	}
	if config.Server.RateLimit > 0 && config.Server.Burst <= 0 {
		return fmt.Errorf("server burst must be positive when rate limiting")
	}

	if config.Assembly.CharsPerToken <= 0 {
		return fmt.Errorf("assembly chars_per_token must be positive")
	}
	if config.Assembly.DeviationThreshold <= 0 {
		return fmt.Errorf("assembly deviation_threshold must be positive")
	}

	if t := config.Screening.InjectionThreshold; t < 0 || t > 1 {
		return fmt.Errorf("screening injection_threshold must be between 0 and 1")
	}
	if config.Capture.Enabled && strings.TrimSpace(config.Capture.Dir) == "" {
		return fmt.Errorf("capture dir is required when capture is enabled")
	}
	return nil
}
