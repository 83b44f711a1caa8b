package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/verstore/internal/db"
	"github.com/rpattn/verstore/internal/versioning"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the full application configuration.
type Config struct {
	Store      StoreConfig
	Database   db.Config
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Server     ServerConfig
	Ingest     IngestConfig
	Log        LogConfig
	Migrations MigrationsConfig

	// ConfigFile is the config file that was read, empty when none was found.
	ConfigFile string
}

type StoreConfig struct {
	Driver string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type IngestConfig struct {
	IDField    string
	DateFields []string
}

type LogConfig struct {
	Level string
}

type MigrationsConfig struct {
	Auto bool
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Store:    StoreConfig{Driver: DriverPostgres},
		Database: db.DefaultConfig(),
		SQLite:   SQLiteConfig{Path: "verstore.db"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Ingest: IngestConfig{
			IDField:    versioning.DefaultIDField,
			DateFields: append([]string(nil), versioning.DefaultDateFields...),
		},
		Log:        LogConfig{Level: "info"},
		Migrations: MigrationsConfig{Auto: true},
	}
}

var envKeys = []string{
	"store.driver",
	"database.host", "database.port", "database.user", "database.password", "database.dbname", "database.sslmode",
	"sqlite.path",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl",
	"server.addr", "server.allowed_origins",
	"ingest.id_field", "ingest.date_fields",
	"log.level",
	"migrations.auto",
}

// Load reads an optional .env file, then config.yaml from configPath, then
// VERSTORE_* environment variables (VERSTORE_DATABASE_HOST and so on). Later
// sources win; anything unset keeps its default.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("VERSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	if v.IsSet("store.driver") {
		cfg.Store.Driver = strings.ToLower(v.GetString("store.driver"))
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("sqlite.path") {
		cfg.SQLite.Path = v.GetString("sqlite.path")
	}

	if v.IsSet("redis.enabled") {
		cfg.Redis.Enabled = v.GetBool("redis.enabled")
	}
	if v.IsSet("redis.addr") {
		cfg.Redis.Addr = v.GetString("redis.addr")
	}
	if v.IsSet("redis.password") {
		cfg.Redis.Password = v.GetString("redis.password")
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("redis.ttl") {
		cfg.Redis.TTL = v.GetDuration("redis.ttl")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}

	if v.IsSet("ingest.id_field") {
		cfg.Ingest.IDField = v.GetString("ingest.id_field")
	}
	if v.IsSet("ingest.date_fields") {
		cfg.Ingest.DateFields = splitList(v.GetStringSlice("ingest.date_fields"))
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("migrations.auto") {
		cfg.Migrations.Auto = v.GetBool("migrations.auto")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database.host is required for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if strings.TrimSpace(c.Ingest.IDField) == "" {
		return errors.New("ingest.id_field must not be empty")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
