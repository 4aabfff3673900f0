package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/pyplots-catalog/internal/data/db"
	"github.com/yungbote/pyplots-catalog/internal/platform/pkgquery"
)

const EnvPrefix = "PYPLOTS"

type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"database"`
	PkgQuery PkgQueryConfig `mapstructure:"pkgquery"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Previews PreviewsConfig `mapstructure:"previews"`
}

type CatalogConfig struct {
	// Root is the directory holding plots/.
	Root     string `mapstructure:"root"`
	PageSize int    `mapstructure:"page_size"`
}

type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

type PkgQueryConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type AuditConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type PreviewsConfig struct {
	Bucket        string `mapstructure:"bucket"`
	CDNDomain     string `mapstructure:"cdn_domain"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	StorageMode   string `mapstructure:"storage_mode"`
	EmulatorHost  string `mapstructure:"emulator_host"`
	Credentials   string `mapstructure:"credentials"`
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
}

// LoadConfig reads, in increasing priority: defaults, an optional
// pyplots.yaml (or the file passed in), and PYPLOTS_* environment
// variables such as PYPLOTS_DATABASE_DSN.
func LoadConfig(configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pyplots")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.root", ".")
	v.SetDefault("catalog.page_size", 200)

	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.dsn", "pyplots.db")
	v.SetDefault("database.slow_threshold", "1s")

	v.SetDefault("pkgquery.command", pkgquery.DefaultCommand)
	v.SetDefault("pkgquery.timeout", pkgquery.DefaultTimeout.String())

	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "")

	v.SetDefault("audit.concurrency", 8)

	v.SetDefault("previews.bucket", "")
	v.SetDefault("previews.cdn_domain", "")
	v.SetDefault("previews.public_base_url", "")
	v.SetDefault("previews.storage_mode", "")
	v.SetDefault("previews.emulator_host", "")
	v.SetDefault("previews.credentials", "")
	v.SetDefault("previews.artifacts_dir", "artifacts")
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case db.DriverPostgres, "postgresql", "pg", db.DriverSQLite, "sqlite3":
	default:
		return fmt.Errorf("database.driver %q is not postgres or sqlite", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.Catalog.Root) == "" {
		return fmt.Errorf("catalog.root is required")
	}
	if c.PkgQuery.Timeout <= 0 {
		return fmt.Errorf("pkgquery.timeout must be positive")
	}
	if c.Audit.Concurrency <= 0 {
		return fmt.Errorf("audit.concurrency must be positive")
	}
	return nil
}

func (c Config) DBConfig() db.Config {
	return db.Config{
		Driver:        c.Database.Driver,
		DSN:           c.Database.DSN,
		SlowThreshold: c.Database.SlowThreshold,
	}
}
