package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the connection pool settings. Zero values take the pool defaults.
type MySQLConfig struct {
	// user:password@tcp(host:port)/dbname?parseTime=true&multiStatements=true
	DSN string `yaml:"dsn" env:"QUIZ_DATABASE_DSN"`

	MaxOpenConnections int           `yaml:"maxOpenConnections"` // 25
	MaxIdleConnections int           `yaml:"maxIdleConnections"` // 5
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`    // 5m
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime"`    // 10m
}

const pingTimeout = 5 * time.Second

func (c *MySQLConfig) withDefaults() MySQLConfig {
	out := *c
	if out.MaxOpenConnections == 0 {
		out.MaxOpenConnections = 25
	}
	if out.MaxIdleConnections == 0 {
		out.MaxIdleConnections = 5
	}
	if out.ConnMaxLifetime == 0 {
		out.ConnMaxLifetime = 5 * time.Minute
	}
	if out.ConnMaxIdleTime == 0 {
		out.ConnMaxIdleTime = 10 * time.Minute
	}
	return out
}

// MySQL is the Database backed by a database/sql pool.
type MySQL struct {
	pool *sql.DB
}

// NewMySQLWithConfig opens the pool and pings it once.
func NewMySQLWithConfig(config *MySQLConfig) (*MySQL, error) {
	if config == nil || config.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}
	cfg := config.withDefaults()

	pool, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConnections)
	pool.SetMaxIdleConns(cfg.MaxIdleConnections)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQL{pool: pool}, nil
}

func (m *MySQL) Query(ctx context.Context, stmt string, args ...interface{}) (Rows, error) {
	return query(ctx, m.pool, stmt, args...)
}

func (m *MySQL) QueryRow(ctx context.Context, stmt string, args ...interface{}) Row {
	return sqlRow{m.pool.QueryRowContext(ctx, stmt, args...)}
}

func (m *MySQL) Exec(ctx context.Context, stmt string, args ...interface{}) (Result, error) {
	return exec(ctx, m.pool, stmt, args...)
}

// Transaction runs fn in a transaction and commits when it returns nil.
func (m *MySQL) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	tx, err := m.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	t := &sqlTx{tx: tx}
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

func (m *MySQL) Ping(ctx context.Context) error {
	if err := m.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.pool.Close()
}

// DB exposes the pool to the migrator.
func (m *MySQL) DB() *sql.DB {
	return m.pool
}

// sqlQuerier is the part shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func query(ctx context.Context, q sqlQuerier, stmt string, args ...interface{}) (Rows, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return sqlRows{rows}, nil
}

func exec(ctx context.Context, q sqlQuerier, stmt string, args ...interface{}) (Result, error) {
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

type sqlRows struct {
	*sql.Rows
}

// sqlRow wraps scan errors with %w so IsNoRows still matches.
type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...interface{}) error {
	if err := r.row.Scan(dest...); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Query(ctx context.Context, stmt string, args ...interface{}) (Rows, error) {
	return query(ctx, t.tx, stmt, args...)
}

func (t *sqlTx) QueryRow(ctx context.Context, stmt string, args ...interface{}) Row {
	return sqlRow{t.tx.QueryRowContext(ctx, stmt, args...)}
}

func (t *sqlTx) Exec(ctx context.Context, stmt string, args ...interface{}) (Result, error) {
	return exec(ctx, t.tx, stmt, args...)
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
