package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

// SQLAdapter - долговременное хранилище координации поверх sqlite3 или postgres.
// Все переходы статусов выполняются условными UPDATE/INSERT ... ON CONFLICT,
// поэтому несколько инстансов сервиса могут работать с одной базой.
type SQLAdapter struct {
	conn    *sql.DB
	dialect dialect
	logger  out.LoggerPort
	now     func() time.Time
}

func NewSQLAdapter(cfg *config.Config, logger out.LoggerPort) (*SQLAdapter, error) {
	d, err := parseDialect(cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Storage.DSN
	if d == dialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(string(d), dsn)
	if err != nil {
		logger.Error("storage.open.failed", out.LogFields{
			"driver": d,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == dialectSQLite {
		// sqlite сериализует записи, одно соединение исключает SQLITE_BUSY внутри процесса
		conn.SetMaxOpenConns(1)
	} else if cfg.Storage.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	}

	adapter := &SQLAdapter{
		conn:    conn,
		dialect: d,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}

	if err := adapter.migrate(context.Background()); err != nil {
		conn.Close()
		logger.Error("storage.migrate.failed", out.LogFields{
			"driver": d,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("storage.ready", out.LogFields{
		"driver": d,
	})

	return adapter, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_txlock=immediate"
}

func (s *SQLAdapter) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == dialectPostgres {
		schema = postgresSchema
	}
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.exec(ctx, s.conn,
		`INSERT INTO engine_state (id, halted, reason) VALUES (1, ?, '') ON CONFLICT (id) DO NOTHING`,
		false,
	)
	return err
}

func (s *SQLAdapter) Close() error {
	return s.conn.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLAdapter) exec(ctx context.Context, db execer, query string, args ...interface{}) (int64, error) {
	res, err := db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLAdapter) query(ctx context.Context, db execer, query string, args ...interface{}) (*sql.Rows, error) {
	return db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLAdapter) queryRow(ctx context.Context, db execer, query string, args ...interface{}) *sql.Row {
	return db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
