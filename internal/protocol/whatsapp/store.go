package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"
)

// DefaultStoreDSN keeps device keys in a SQLite file next to the application database.
const DefaultStoreDSN = "file:whatsmeow.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Store holds device keys and protocol state for every tenant.
type Store struct {
	Container *sqlstore.Container
	db        *sql.DB
}

// OpenStore opens the protocol store and brings its schema up to date.
// driver is "sqlite" or "postgres".
func OpenStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	var sqlDriver, dialect string
	switch driver {
	case "", "sqlite":
		sqlDriver, dialect = "sqlite", "sqlite3"
		if dsn == "" {
			dsn = DefaultStoreDSN
		}
	case "postgres":
		sqlDriver, dialect = "pgx", "postgres"
		if dsn == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open protocol store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach protocol store: %w", err)
	}

	container := sqlstore.NewWithDB(db, dialect, NewLogger(logger, "store"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade protocol store: %w", err)
	}

	return &Store{Container: container, db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
