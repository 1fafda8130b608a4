package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const dbFileName = "tokens.db"

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the path to the SQLite database file
	Path = filepath.Join(os.Getenv("HOME"), ".tokenguard", dbFileName)
)

// ConfigurePath sets Path from the environment. TOKENGUARD_HOME wins over XDG_DATA_HOME,
// and the home directory is the fallback.
func ConfigurePath() error {
	if dir := os.Getenv("TOKENGUARD_HOME"); dir != "" {
		Path = filepath.Join(dir, dbFileName)
		return nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		Path = filepath.Join(dir, "tokenguard", dbFileName)
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	Path = filepath.Join(home, ".tokenguard", dbFileName)
	return nil
}

// InitDB opens the database at Path, creating its directory and tables if needed.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	gormDB, err := Open(Path)
	if err != nil {
		return err
	}
	Db = gormDB

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// Open opens a SQLite database (a file path or ":memory:") and migrates the token table.
func Open(dsn string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return nil, err
	}
	if err := gormDB.AutoMigrate(&Token{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return nil, err
	}
	return gormDB, nil
}

// GetDB returns the global database connection.
func GetDB() *gorm.DB { return Db }

// CloseDB closes the global database connection. It is a no-op when the database was never opened.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}

// Shutdown closes the database and only logs failures. Meant for interrupt handlers.
func Shutdown() {
	if err := CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database")
	}
}

func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

// gormLogger follows the global zerolog level: silent when logging is disabled.
func gormLogger() logger.Interface {
	if zerolog.GlobalLevel() == zerolog.Disabled {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.Default.LogMode(logger.Info)
}
