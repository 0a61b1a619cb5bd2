// Package collector runs one ingestion pass over the source catalog.
//
// Sources are processed sequentially in catalog order. A failure in any step
// for one source (fetch, parse, store) is recorded as an ERROR audit entry and
// the run moves on to the next source.
package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"macrodb/internal/catalog"
	"macrodb/internal/metrics"
	"macrodb/internal/model"
	"macrodb/internal/normalize"
	"macrodb/internal/providers"
	"macrodb/internal/store"
)

// SourceResult is the outcome of one source in a run. Warning is set on
// successful sources whose index series could not be rebased.
type SourceResult struct {
	Code    string
	Rows    int
	Status  model.FetchStatus
	Err     error
	Warning string
	Elapsed time.Duration
}

type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SourceResult
}

func (s Summary) Counts() (ok, failed int) {
	for _, result := range s.Results {
		if result.Status == model.FetchOK {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

func (s Summary) Rows() int {
	total := 0
	for _, result := range s.Results {
		total += result.Rows
	}
	return total
}

type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewRunID func() string
}

type Collector struct {
	catalog  *catalog.Catalog
	registry *providers.Registry
	store    store.Writer
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newRunID func() string
}

func New(cat *catalog.Catalog, registry *providers.Registry, st store.Writer, opts Options) *Collector {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Collector{
		catalog:  cat,
		registry: registry,
		store:    st,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		newRunID: opts.NewRunID,
	}
}

// Run fetches every catalog series, then the forecasts entry if one is
// configured. Source failures never abort the run; they are reported in the
// summary. The returned error combines audit-log write failures and, when ctx
// is cancelled, the context error. Sources not reached after a cancellation
// are absent from both the summary and the audit log.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	runID := c.newRunID()
	summary := Summary{RunID: runID, StartedAt: c.now()}
	log := c.log.With(zap.String("run_id", runID))

	sources := c.catalog.Series()
	if forecasts, ok := c.catalog.Forecasts(); ok {
		sources = append(sources, forecasts)
	}
	log.Info("collector run started", zap.Int("sources", len(sources)))

	var runErr error
	for _, meta := range sources {
		if ctx.Err() != nil {
			log.Warn("collector run cancelled", zap.Int("remaining", len(sources)-len(summary.Results)))
			break
		}

		result := c.collectSource(ctx, meta, log)
		summary.Results = append(summary.Results, result)

		// The audit entry is written even when ctx was cancelled mid-source.
		if err := c.audit(context.WithoutCancel(ctx), runID, result); err != nil {
			log.Error("audit log write failed", zap.String("source", meta.Code), zap.Error(err))
			runErr = multierr.Append(runErr, err)
		}
	}

	// Cancellation during the last source still marks the run as interrupted.
	if err := ctx.Err(); err != nil {
		runErr = multierr.Append(runErr, err)
	}

	summary.FinishedAt = c.now()
	c.metrics.MarkRun(summary.FinishedAt)

	ok, failed := summary.Counts()
	log.Info("collector run complete",
		zap.Int("ok", ok),
		zap.Int("failed", failed),
		zap.Int("rows", summary.Rows()),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, runErr
}

func (c *Collector) collectSource(ctx context.Context, meta catalog.SourceMeta, log *zap.Logger) SourceResult {
	log = log.With(zap.String("source", meta.Code))
	started := c.now()

	var (
		rows    int
		warning string
		err     error
	)
	if meta.Adapter == catalog.AdapterSpreadsheet {
		rows, err = c.ingestForecasts(ctx, meta, log)
	} else {
		rows, warning, err = c.ingestSeries(ctx, meta, log)
	}

	result := SourceResult{Code: meta.Code, Elapsed: c.now().Sub(started)}
	if err != nil {
		result.Status = model.FetchError
		result.Err = err
		log.Warn("source failed", zap.Error(err))
	} else {
		result.Status = model.FetchOK
		result.Rows = rows
		result.Warning = warning
		if warning != "" {
			log.Warn("index rebase skipped", zap.String("reason", warning))
		}
		log.Info("source collected", zap.Int("rows", rows), zap.Duration("elapsed", result.Elapsed))
	}
	c.metrics.ObserveSource(meta.Code, result.Status, result.Rows, result.Elapsed)
	return result
}

func (c *Collector) ingestSeries(ctx context.Context, meta catalog.SourceMeta, log *zap.Logger) (int, string, error) {
	if err := c.store.UpsertIndicator(ctx, meta.Indicator()); err != nil {
		return 0, "", err
	}
	adapter, err := c.registry.Get(meta.Adapter)
	if err != nil {
		return 0, "", err
	}
	batch, err := adapter.Fetch(ctx, meta)
	if err != nil {
		return 0, "", err
	}
	log.Debug("source fetched", zap.Int("rows", batch.Len()))

	observations := batch.Observations
	var warning string
	if baseYear, ok := normalize.BaseYear(meta.Unit); ok {
		rebased := normalize.Rebase(observations, baseYear)
		observations = rebased.Observations
		if !rebased.Applied {
			warning = "rebase skipped: " + rebased.Skipped
		}
	}

	rows, err := c.store.UpsertObservations(ctx, observations)
	if err != nil {
		return 0, "", err
	}
	return rows, warning, nil
}

func (c *Collector) ingestForecasts(ctx context.Context, meta catalog.SourceMeta, log *zap.Logger) (int, error) {
	adapter, err := c.registry.Get(meta.Adapter)
	if err != nil {
		return 0, err
	}
	batch, err := adapter.Fetch(ctx, meta)
	if err != nil {
		return 0, err
	}
	log.Debug("forecasts fetched", zap.Int("rows", batch.Len()))
	return c.store.UpsertForecasts(ctx, batch.Forecasts)
}

func (c *Collector) audit(ctx context.Context, runID string, result SourceResult) error {
	entry := model.FetchLogEntry{
		SourceCode: result.Code,
		RunID:      runID,
		FetchedAt:  c.now(),
		Rows:       result.Rows,
		Status:     result.Status,
		Message:    result.Warning,
	}
	if result.Err != nil {
		entry.Message = result.Err.Error()
	}
	return c.store.LogFetch(ctx, entry)
}
