package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"; FTS5 needs -tags sqlite_fts5
	_ "modernc.org/sqlite"          // registers "sqlite"
)

// Supported database/sql drivers.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// dsn builds a read-write-create URI with WAL, a busy timeout and immediate
// transactions, in the parameter dialect of each driver.
func dsn(driver, path string, busy time.Duration) (string, error) {
	file := "file:" + uriEscaper.Replace(path) + "?mode=rwc"
	ms := busy.Milliseconds()
	switch driver {
	case DriverModernc:
		return fmt.Sprintf("%s&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", file, ms), nil
	case DriverMattn:
		return fmt.Sprintf("%s&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate", file, ms), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

func open(ctx context.Context, path string, cfg registryConfig) (*DB, error) {
	source, err := dsn(cfg.driver, path, cfg.busyTimeout)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(cfg.driver, source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(cfg.maxConns)
	conn.SetMaxIdleConns(cfg.maxConns)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	// Reading the schema forces SQLite to validate the file header.
	if _, err := conn.ExecContext(ctx, `SELECT count(*) FROM sqlite_master`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &DB{
		conn:   conn,
		path:   path,
		logger: cfg.logger.With(slog.String("index", path)),
		now:    time.Now,
	}, nil
}
