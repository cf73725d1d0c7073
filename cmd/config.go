package cmd

import (
	"errors"
	"fmt"
	"regexp"
)

// Static errors for configuration validation
var (
	ErrConfigFileRequired  = errors.New("config file is required")
	ErrDatabaseHostMissing = errors.New("required key is missing from config: host")
	ErrDatabasePortMissing = errors.New("required key is missing from config: port")
	ErrDatabaseUserMissing = errors.New("required key is missing from config: user")
	ErrDatabasePassMissing = errors.New("required key is missing from config: password")
	ErrDatabasePortInvalid = errors.New("database port must be between 1 and 65535")
	ErrDatabaseNameInvalid = errors.New("database name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrSampleSizeNegative  = errors.New("num-rows-to-compare must be >= 0")
	ErrWorkersMinimum      = errors.New("workers must be at least 1")
	ErrWorkersMaximum      = errors.New("workers must not exceed 64")
	ErrIgnoreColumnEmpty   = errors.New("ignore_tables_columns contains an empty column name")
)

type Config struct {
	Debug     bool
	LogFormat string
	Workers   int

	// Connection parameters shared by both databases; the two sides live on
	// the same server and differ only by database name.
	Connection ConnectionConfig

	DatabaseA string
	DatabaseB string

	// NumRowsToCompare bounds the optional data-content comparison.
	// Zero disables it.
	NumRowsToCompare int

	// IgnoreTablesColumns maps a table name (or "*" for all tables) to the
	// columns excluded from every comparison path.
	IgnoreTablesColumns map[string][]string
}

type ConnectionConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSL      bool
}

// ConnString builds a lib/pq connection string for one database side.
// lib/pq handles password escaping internally, so no URL encoding is needed.
func (c ConnectionConfig) ConnString(dbname string) string {
	sslMode := "disable"
	if c.SSL {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbname, sslMode)
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
// to prevent SQL injection attacks
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidDatabaseName validates that a database name is safe to use in a
// connection string
func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

func (c *Config) Validate() error {
	// Validate connection configuration
	if c.Connection.Host == "" {
		return ErrDatabaseHostMissing
	}
	if c.Connection.Port == 0 {
		return ErrDatabasePortMissing
	}
	if c.Connection.User == "" {
		return ErrDatabaseUserMissing
	}
	if c.Connection.Password == "" {
		return ErrDatabasePassMissing
	}
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Connection.Port)
	}

	// Validate database names to prevent SQL injection
	if !isValidDatabaseName(c.DatabaseA) {
		return fmt.Errorf("%w: '%s'", ErrDatabaseNameInvalid, c.DatabaseA)
	}
	if !isValidDatabaseName(c.DatabaseB) {
		return fmt.Errorf("%w: '%s'", ErrDatabaseNameInvalid, c.DatabaseB)
	}

	// Validate sample size
	if c.NumRowsToCompare < 0 {
		return fmt.Errorf("%w, got %d", ErrSampleSizeNegative, c.NumRowsToCompare)
	}

	// Validate workers count
	if c.Workers < 1 {
		return ErrWorkersMinimum
	}
	if c.Workers > 64 {
		return fmt.Errorf("%w, got %d", ErrWorkersMaximum, c.Workers)
	}

	// Validate ignore rules
	for table, columns := range c.IgnoreTablesColumns {
		for _, col := range columns {
			if col == "" {
				return fmt.Errorf("%w (table '%s')", ErrIgnoreColumnEmpty, table)
			}
		}
	}

	return nil
}
