package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type App struct {
	Name string
}

type Log struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
	Compress   bool
}

// Storage selects where books live. Users always live in UsersFile.
type Storage struct {
	Driver    string // file | sqlite | postgres
	BooksFile string `mapstructure:"books_file"`
	UsersFile string `mapstructure:"users_file"`
	DSN       string
}

type Library struct {
	ReminderDays     int    `mapstructure:"reminder_days"`
	DefaultBookLimit int    `mapstructure:"default_book_limit"`
	ReaderCardMonths int    `mapstructure:"reader_card_months"`
	BorrowMonths     int    `mapstructure:"borrow_months"`
	AdminEmail       string `mapstructure:"admin_email"`
	AdminPassword    string `mapstructure:"admin_password"`
}

type Config struct {
	App     App
	Log     Log
	Storage Storage
	Library Library
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "library")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.books_file", "data/books.csv")
	v.SetDefault("storage.users_file", "data/users.csv")
	v.SetDefault("storage.dsn", "data/library.db")

	v.SetDefault("library.reminder_days", 7)
	v.SetDefault("library.default_book_limit", 5)
	v.SetDefault("library.reader_card_months", 12)
	v.SetDefault("library.borrow_months", 1)
	v.SetDefault("library.admin_email", "admin@library.local")
	v.SetDefault("library.admin_password", "admin")
}

// Load reads the YAML file at path (or $CONFIG_PATH, or the local default)
// with APP_ environment overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver %q: want file, sqlite or postgres", c.Storage.Driver)
	}
	if c.Library.ReminderDays < 0 {
		return fmt.Errorf("library.reminder_days must not be negative, got %d", c.Library.ReminderDays)
	}
	if c.Library.BorrowMonths < 1 {
		return fmt.Errorf("library.borrow_months must be at least 1, got %d", c.Library.BorrowMonths)
	}
	return nil
}
