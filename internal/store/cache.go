// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"etl-notifier/internal/model"
)

var (
	ErrCacheLoad = errors.New("cache load")
	ErrCacheSave = errors.New("cache save")
)

// Cache maps query name -> identity key -> status.
type Cache map[string]map[string]model.Status

// Store persists the whole Cache once per cycle.
type Store interface {
	Load(ctx context.Context) (Cache, error)
	Save(ctx context.Context, c Cache) error
}

// JSONFile keeps the cache in a single pretty-printed JSON file. Writes are not atomic:
// a crash mid-write can leave a truncated file, which the next Load reports.
type JSONFile struct {
	Path string
}

func NewJSONFile(path string) *JSONFile { return &JSONFile{Path: path} }

// Load reads the cache. A missing file is created empty.
func (f *JSONFile) Load(ctx context.Context) (Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(f.Path, []byte("{}"), 0o644); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrCacheLoad, f.Path, err)
		}
		return Cache{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheLoad, err)
	}
	c := Cache{}
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in %s: %v", ErrCacheLoad, f.Path, err)
	}
	return c, nil
}

// Save overwrites the file with c.
func (f *JSONFile) Save(ctx context.Context, c Cache) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		c = Cache{}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSave, err)
	}
	if err := os.WriteFile(f.Path, b, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSave, err)
	}
	return nil
}

// Counts returns how many keys of a query are in each status.
func (c Cache) Counts(query string) (pending, confirmed int) {
	for _, st := range c[query] {
		switch st {
		case model.StatusPending:
			pending++
		case model.StatusConfirmed:
			confirmed++
		}
	}
	return pending, confirmed
}
