package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"etl-notifier/internal/config"
)

const defaultDriver = "sqlserver"

// drivers accepted by the database source; each is registered by an import above.
var drivers = map[string]bool{
	"sqlserver": true,
	"sqlite":    true,
	"postgres":  true,
}

type sqlSource struct {
	name    string
	db      *sql.DB
	timeout time.Duration
}

func openDatabase(ctx context.Context, name string, cfg config.SourceConfig) (Source, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.String("driver")))
	if driver == "" {
		driver = defaultDriver
	}
	if !drivers[driver] {
		return nil, fmt.Errorf("source %s: unsupported driver: %s", name, driver)
	}
	dsn := connectionString(cfg)
	if dsn == "" {
		return nil, fmt.Errorf("source %s: connection_string is required", name)
	}
	return openSQL(ctx, name, driver, dsn, cfg)
}

func connectionString(cfg config.SourceConfig) string {
	if s := strings.TrimSpace(cfg.String("connection_string")); s != "" {
		return s
	}
	return strings.TrimSpace(cfg.String("dsn"))
}

func openSQL(ctx context.Context, name, driver, dsn string, cfg config.SourceConfig) (Source, error) {
	var timeout time.Duration
	if v := cfg.String("query_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("source %s: query_timeout: %w", name, err)
		}
		timeout = d
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("source %s: open %s: %w", name, driver, err)
	}
	// one connection per cycle, reused by every query of this source
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("source %s: ping: %w", name, err)
	}
	return &sqlSource{name: name, db: db, timeout: timeout}, nil
}

func (s *sqlSource) Name() string { return s.name }

func (s *sqlSource) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Fetch runs query["sql"] with optional positional query["args"].
func (s *sqlSource) Fetch(ctx context.Context, query map[string]any) ([]Row, error) {
	if s.db == nil {
		return nil, errors.New("source is closed")
	}
	stmt, _ := query["sql"].(string)
	if strings.TrimSpace(stmt) == "" {
		return nil, errors.New("SQL query is required for database source")
	}
	var args []any
	if raw, ok := query["args"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("query args must be a list, got %T", raw)
		}
		args = list
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}
