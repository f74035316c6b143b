package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const SearchLimit = 10

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT open the store in init(); tests and the agent main open it
	// explicitly so they control the database path.
}

// DatabasePath resolves the per-device store location. Defaults to a file
// next to the agent; ":memory:" keeps everything in RAM (tests).
func DatabasePath() string {
	p := strings.TrimSpace(os.Getenv("LOCAL_DB_PATH"))
	if p == "" {
		p = "setledger.db"
	}
	return p
}

// OpenLocalStore opens (or creates) the embedded store and sets the global DB.
// The store is a single SQLite file; WAL + busy_timeout keep the foreground
// workflows and the sync workers from tripping over each other's writes.
func OpenLocalStore(path string) error {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	var err error
	db, err = gorm.Open(sqlite.Open(dsn), initConfig())
	if err != nil {
		return err
	}

	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		// Single writer: SQLite serializes writes anyway, so a small pool
		// avoids SQLITE_BUSY churn.
		sqlDB.SetMaxOpenConns(intFromEnv("DB_MAX_OPEN_CONNS", 4))
		sqlDB.SetMaxIdleConns(intFromEnv("DB_MAX_IDLE_CONNS", 2))
		sqlDB.SetConnMaxLifetime(time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 0)) * time.Second)
	}
	return nil
}

// MustOpenLocalStore is the main() entry point: the agent cannot do anything
// useful without its store, so failure here is fatal.
func MustOpenLocalStore() {
	if err := OpenLocalStore(DatabasePath()); err != nil {
		log.Fatalf("failed to open local store at %s: %v", DatabasePath(), err)
	}
	log.Printf("local store ready at %s", DatabasePath())
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel()),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}
}

func gormLogLevel() logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DB_LOG_LEVEL"))) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}
