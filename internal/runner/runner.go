// Package runner drives poll cycles: one cache load, every configured query grouped by
// source, one cache save.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"etl-notifier/internal/config"
	"etl-notifier/internal/confirm"
	"etl-notifier/internal/metrics"
	"etl-notifier/internal/notify"
	"etl-notifier/internal/source"
	"etl-notifier/internal/store"
)

// OpenFunc acquires a source connection for one cycle.
type OpenFunc func(ctx context.Context, name string, cfg config.SourceConfig) (source.Source, error)

type Runner struct {
	cfg      *config.Config
	store    store.Store
	notifier notify.Notifier
	open     OpenFunc
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type Option func(*Runner)

// WithOpener replaces source.Open.
func WithOpener(open OpenFunc) Option {
	return func(r *Runner) { r.open = open }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func New(logger *zap.Logger, cfg *config.Config, st store.Store, n notify.Notifier, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		store:    st,
		notifier: n,
		open:     source.Open,
		logger:   logger.Named("runner"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run loops forever: a cycle, then a pause of interval. Cycle errors and panics are
// logged and the loop carries on. It returns when ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("notifier started",
		zap.Int("queries", len(r.cfg.Queries)),
		zap.Int("sources", len(r.cfg.Sources)),
		zap.Duration("interval", interval),
	)
	for {
		if err := r.safeCycle(ctx); err != nil {
			r.logger.Error("cycle failed", zap.Error(err))
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			r.logger.Info("stopping", zap.Error(ctx.Err()))
			return nil
		case <-t.C:
		}
	}
}

func (r *Runner) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in cycle: %v", p)
		}
	}()
	return r.RunCycle(ctx)
}

// RunCycle loads the cache, processes every query and saves the cache. A failing query
// is logged and skipped. Failing to load the cache, to acquire a source or to save
// abandons the cycle; in the first two cases nothing is saved.
func (r *Runner) RunCycle(ctx context.Context) (err error) {
	start := time.Now()
	log := r.logger.With(zap.String("cycle_id", uuid.NewString()))
	defer func() { r.metrics.ObserveCycle(time.Since(start), err) }()

	cache, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	var stats cycleStats
	for _, g := range groupBySource(r.cfg) {
		if err := r.runSource(ctx, log, g, cache, &stats); err != nil {
			return err
		}
	}

	if err := r.store.Save(ctx, cache); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	log.Info("cycle finished",
		zap.Int("queries_ok", stats.ok),
		zap.Int("queries_failed", stats.failed),
		zap.Int("notified", stats.notified),
		zap.Duration("took", time.Since(start).Truncate(time.Millisecond)),
	)
	return nil
}

type cycleStats struct {
	ok, failed, notified int
}

type sourceGroup struct {
	name    string
	cfg     config.SourceConfig
	queries []config.Query
}

// groupBySource keeps query declaration order; a source is placed where its first query is.
func groupBySource(cfg *config.Config) []sourceGroup {
	var groups []sourceGroup
	idx := map[string]int{}
	for _, q := range cfg.Queries {
		i, ok := idx[q.Source]
		if !ok {
			i = len(groups)
			idx[q.Source] = i
			groups = append(groups, sourceGroup{name: q.Source, cfg: cfg.Sources[q.Source]})
		}
		groups[i].queries = append(groups[i].queries, q)
	}
	return groups
}

// runSource holds one connection for all of the source's queries and always closes it.
func (r *Runner) runSource(ctx context.Context, log *zap.Logger, g sourceGroup, cache store.Cache, stats *cycleStats) error {
	src, err := r.open(ctx, g.name, g.cfg)
	if err != nil {
		return fmt.Errorf("open source %s: %w", g.name, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("close source", zap.String("source", g.name), zap.Error(err))
		}
	}()

	for _, q := range g.queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.runQuery(ctx, log, src, q, cache)
		if err != nil {
			stats.failed++
			log.Error("query failed",
				zap.String("query", q.Name),
				zap.String("source", g.name),
				zap.Error(err),
			)
			continue
		}
		stats.ok++
		stats.notified += n
	}
	return nil
}

// runQuery returns how many records were notified. The cache entry is replaced before
// delivery, so a failed delivery is not retried by later cycles.
func (r *Runner) runQuery(ctx context.Context, log *zap.Logger, src source.Source, q config.Query, cache store.Cache) (notified int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	rows, err := src.Fetch(ctx, q.Query)
	if err != nil {
		r.metrics.QueryRun(q.Name, 0, err)
		return 0, fmt.Errorf("fetch: %w", err)
	}
	records, err := source.ExtractRecords(rows)
	if err != nil {
		r.metrics.QueryRun(q.Name, len(rows), err)
		return 0, fmt.Errorf("extract: %w", err)
	}
	r.metrics.QueryRun(q.Name, len(rows), nil)

	res := confirm.Evaluate(records, cache[q.Name], q.Policy)
	cache[q.Name] = res.Next
	pending, confirmed := cache.Counts(q.Name)
	r.metrics.CacheEntries(q.Name, pending, confirmed)
	log.Debug("query evaluated",
		zap.String("query", q.Name),
		zap.Int("rows", len(rows)),
		zap.Int("notify", len(res.Notify)),
		zap.Int("pending", pending),
		zap.Int("confirmed", confirmed),
	)

	if len(res.Notify) == 0 {
		return 0, nil
	}
	var msg string
	if len(res.Notify) == 1 {
		msg = notify.FormatSingle(res.Notify[0], q.MessageSingle)
	} else {
		msg = notify.FormatMultiple(res.Notify, q.MessageMultiple, q.MessageMultipleLine)
	}
	err = r.notifier.Send(ctx, msg)
	r.metrics.Notification(q.Name, err)
	if err != nil {
		return 0, fmt.Errorf("send %d record(s) via %s: %w", len(res.Notify), r.notifier.Name(), err)
	}
	log.Info("notification sent",
		zap.String("query", q.Name),
		zap.Int("records", len(res.Notify)),
	)
	return len(res.Notify), nil
}
