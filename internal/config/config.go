package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/snowflakedb/gosnowflake"

	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/schema"
)

const (
	DefaultDestinationDatabase = "INSTACART_DB"
	DefaultDestinationSchema   = "RAW"
	DefaultBatchSize           = 1000
)

type Config struct {
	Source      MySQLConfig
	Destination SnowflakeConfig

	BatchSize    int
	LoadMode     load.Mode
	TypeMatching schema.Matching

	LogLevel    string
	LogFormat   string
	HTTPAddress string
	AuditDSN    string
	Progress    bool
}

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, defaultVal string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return defaultVal
	}

	cfg := Config{
		Source: MySQLConfig{
			Host:     get("MYSQL_HOST", ""),
			User:     get("MYSQL_USER", ""),
			Password: getenv("MYSQL_PASSWORD"),
			Database: get("DATABASE_NAME", ""),
		},
		Destination: SnowflakeConfig{
			Account:   get("SNOWFLAKE_ACCOUNT", ""),
			User:      get("SNOWFLAKE_USER", ""),
			Password:  getenv("SNOWFLAKE_PASSWORD"),
			Database:  get("SNOWFLAKE_DATABASE", DefaultDestinationDatabase),
			Schema:    get("SNOWFLAKE_SCHEMA", DefaultDestinationSchema),
			Warehouse: get("SNOWFLAKE_WAREHOUSE", ""),
			Role:      get("SNOWFLAKE_ROLE", ""),
		},
		LogLevel:    get("MIGRATOR_LOG_LEVEL", "info"),
		LogFormat:   get("MIGRATOR_LOG_FORMAT", "json"),
		HTTPAddress: get("MIGRATOR_HTTP_ADDR", ""),
		AuditDSN:    get("MIGRATOR_AUDIT_DSN", ""),
	}

	port, err := strconv.Atoi(get("MYSQL_PORT", "3306"))
	if err != nil || port <= 0 {
		return Config{}, errors.New("MYSQL_PORT must be a positive integer")
	}
	cfg.Source.Port = port

	batch, err := strconv.Atoi(get("MIGRATOR_BATCH_SIZE", strconv.Itoa(DefaultBatchSize)))
	if err != nil || batch <= 0 {
		return Config{}, errors.New("MIGRATOR_BATCH_SIZE must be a positive integer")
	}
	cfg.BatchSize = batch

	matching, err := schema.ParseMatching(getenv("MIGRATOR_TYPE_MATCHING"))
	if err != nil {
		return Config{}, fmt.Errorf("MIGRATOR_TYPE_MATCHING: %w", err)
	}
	cfg.TypeMatching = matching

	mode, err := load.ParseMode(getenv("MIGRATOR_LOAD_MODE"))
	if err != nil {
		return Config{}, fmt.Errorf("MIGRATOR_LOAD_MODE: %w", err)
	}
	cfg.LoadMode = mode

	if v := get("MIGRATOR_PROGRESS", ""); v != "" {
		cfg.Progress, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.New("MIGRATOR_PROGRESS must be a boolean")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Source.Host == "":
		return errors.New("MYSQL_HOST is required")
	case c.Source.User == "":
		return errors.New("MYSQL_USER is required")
	case c.Source.Database == "":
		return errors.New("DATABASE_NAME is required")
	case c.Destination.User == "":
		return errors.New("SNOWFLAKE_USER is required")
	case c.Destination.Password == "":
		return errors.New("SNOWFLAKE_PASSWORD is required")
	case c.Destination.Account == "":
		return errors.New("SNOWFLAKE_ACCOUNT is required")
	}
	if _, err := load.ParseMode(string(c.LoadMode)); err != nil {
		return fmt.Errorf("MIGRATOR_LOAD_MODE: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return errors.New("MIGRATOR_LOG_FORMAT must be json or text")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	return nil
}

// Namespace is the fully qualified destination container, e.g. INSTACART_DB.RAW.
func (c SnowflakeConfig) Namespace() string {
	return c.Database + "." + c.Schema
}

// DSN renders the go-sql-driver/mysql connection string. parseTime stays off
// so temporal values reach the destination as MySQL text.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.AllowNativePasswords = true
	return cfg.FormatDSN()
}

// DSN renders the gosnowflake connection string. The database and schema are
// not part of the session: they may not exist until the namespace is ensured.
func (c SnowflakeConfig) DSN() (string, error) {
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.Role,
	})
}
