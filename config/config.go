package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppName     = "insurefire"
	EnvFileName = "config.env"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	API      apiConfig
	Database dbConfig
	Storage  storageConfig
	Service  svcConfig
}

type apiConfig struct {
	URL string `envconfig:"INSUREFIRE_API_URL" default:"http://localhost:8080"`
	// Zero disables the client timeout.
	Timeout time.Duration `envconfig:"INSUREFIRE_API_TIMEOUT" default:"0s"`
}

type dbConfig struct {
	Driver string `envconfig:"INSUREFIRE_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"INSUREFIRE_DB_DSN" default:"insurefire.db"`
}

type storageConfig struct {
	Endpoint  string `envconfig:"INSUREFIRE_S3_ENDPOINT" default:""`
	AccessKey string `envconfig:"INSUREFIRE_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"INSUREFIRE_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"INSUREFIRE_S3_USE_SSL" default:"false"`
	Bucket    string `envconfig:"INSUREFIRE_S3_BUCKET" default:"file-upload"`
	Region    string `envconfig:"INSUREFIRE_S3_REGION" default:""`
	PublicURL string `envconfig:"INSUREFIRE_S3_PUBLIC_URL" default:""`
	UserID    string `envconfig:"INSUREFIRE_USER_ID" default:""`
}

type svcConfig struct {
	SettleDelay   time.Duration `envconfig:"INSUREFIRE_SETTLE_DELAY" default:"1500ms"`
	FrameInterval time.Duration `envconfig:"INSUREFIRE_FRAME_INTERVAL" default:"1s"`
	FrameDir      string        `envconfig:"INSUREFIRE_FRAME_DIR" default:""`
	LogLevel      string        `envconfig:"INSUREFIRE_LOG_LEVEL" default:"info"`
	LogFile       string        `envconfig:"INSUREFIRE_LOG_FILE" default:"insurefire.log"`
	MetricsAddr   string        `envconfig:"INSUREFIRE_METRICS_ADDR" default:""`
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from .env in the working directory. Variables that
// are already set win. Errors are ignored since the files may not exist.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	if c.Service.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive")
	}
	if c.Storage.Endpoint != "" && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("INSUREFIRE_S3_ACCESS_KEY and INSUREFIRE_S3_SECRET_KEY are required with INSUREFIRE_S3_ENDPOINT")
	}
	return nil
}
