package source

import (
	"context"
	"fmt"
	"sort"

	"etl-notifier/internal/config"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Source is an open connection to a data source. It is owned by one cycle and must be
// closed when that cycle is done with it.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query map[string]any) ([]Row, error)
	Close() error
}

// Factory opens a source described by cfg.
type Factory func(ctx context.Context, name string, cfg config.SourceConfig) (Source, error)

var factories = map[string]Factory{
	"database":  openDatabase,
	"azure_sql": openAzureSQL,
}

// Open connects to the source named name using the factory registered for cfg.Type.
func Open(ctx context.Context, name string, cfg config.SourceConfig) (Source, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
	return f(ctx, name, cfg)
}

// Types lists the registered source types.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
