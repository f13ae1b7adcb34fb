package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath keeps the database in process memory. Every connection of
// the pool sees the same data through the shared cache.
const MemoryPath = "file:timetabler?mode=memory&cache=shared"

type Config struct {
	Path string
}

func DefaultConfig() Config {
	return Config{Path: MemoryPath}
}

func (c Config) inMemory() bool {
	return c.Path == "" || c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory")
}

func EnsureDataDir(cfg Config) error {
	if cfg.inMemory() || strings.HasPrefix(cfg.Path, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(cfg.Path), 0o755)
}

func Open(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		cfg.Path = MemoryPath
	}
	if err := EnsureDataDir(cfg); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.inMemory() {
		// the shared in-memory database lives as long as one connection does
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	} else if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}
