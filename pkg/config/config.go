// Package config reads the server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/kvstore"
)

type Config struct {
	ListenAddress string `env:"BOARD_LISTEN" envDefault:"127.0.0.1:1412"`

	// Storage
	Backend         string `env:"BOARD_BACKEND" envDefault:"memory"`
	MemoryQuota     int    `env:"BOARD_MEMORY_QUOTA" envDefault:"5242880"`
	FilePath        string `env:"BOARD_FILE_PATH" envDefault:"data/board.json"`
	SQLitePath      string `env:"BOARD_SQLITE_PATH" envDefault:"data/board.db"`
	PostgresDSN     string `env:"BOARD_POSTGRES_DSN"`
	MongoURI        string `env:"BOARD_MONGO_URI"`
	MongoDatabase   string `env:"BOARD_MONGO_DB" envDefault:"board"`
	MongoCollection string `env:"BOARD_MONGO_COLLECTION" envDefault:"kv"`

	// Presentation
	TimeZone    string        `env:"BOARD_TIMEZONE" envDefault:"Local"`
	Backgrounds []string      `env:"BOARD_BACKGROUNDS" envSeparator:"," envDefault:"background.jpg,background2.jpg,background3.jpg"`
	Timeout     time.Duration `env:"BOARD_REQUEST_TIMEOUT" envDefault:"10s"`
}

// LoadEnvFile copies the variables of a .env file into the environment,
// without overriding the ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "Error while loading %s", path)
	}

	return nil
}

// New parses the configuration from the process environment.
func New() (*Config, error) {
	return parse(env.Options{})
}

// FromMap parses the configuration from the given variables instead of the
// process environment.
func FromMap(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "Error while parsing configuration")
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location is the time zone month keys and dates are computed in.
func (c *Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(c.TimeZone)

	return location, errors.Wrapf(err, "Invalid time zone %q", c.TimeZone)
}

func (c *Config) StoreOptions() kvstore.Options {
	return kvstore.Options{
		Backend:         c.Backend,
		MemoryQuota:     c.MemoryQuota,
		FilePath:        c.FilePath,
		SQLitePath:      c.SQLitePath,
		PostgresDSN:     c.PostgresDSN,
		MongoURI:        c.MongoURI,
		MongoDatabase:   c.MongoDatabase,
		MongoCollection: c.MongoCollection,
	}
}
