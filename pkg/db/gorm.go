package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects the dialect and connection string.
// Type is "mysql" or "sqlite" (the default, for local development).
type Options struct {
	Type     string
	DSN      string
	LogLevel string // silent, error, warn, info
}

// NewGormDB opens the database described by opts.
func NewGormDB(opts Options) (*gorm.DB, error) {
	dsn := opts.DSN
	var dialector gorm.Dialector

	if strings.EqualFold(opts.Type, "mysql") {
		if dsn == "" {
			dsn = "root:@tcp(127.0.0.1:3306)/agents?charset=utf8mb4&parseTime=True&loc=UTC"
			log.Println("Using default MySQL DSN: ", dsn)
		}
		dialector = mysql.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "agents.db"
			log.Println("Using default SQLite DSN: ", dsn)
		}
		dialector = sqlite.Open(dsn)
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  parseLogLevel(opts.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// sqlite serialises writers; a single connection avoids "database is locked"
		// under concurrent dispatches.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrate performs auto-migration for the given GORM models.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
