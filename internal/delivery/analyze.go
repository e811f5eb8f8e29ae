package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
	"github.com/forest-guardian/agrosense-ndvi/internal/sentinel"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

var (
	ErrEmptySelection = errors.New("no polygons selected")
	ErrNoDates        = errors.New("no dates to analyze")
)

const maxErrorMessage = 120

type SceneResolver interface {
	Resolve(ctx context.Context, bbox orb.Bound, target model.Date) (*sentinel.Scene, error)
	ToleranceDays() int
}

type BatchAggregator interface {
	Aggregate(ctx context.Context, date model.Date, polygons []model.Polygon) (map[string]*float64, error)
}

// Notifier receives a one-line run summary after every analysis.
type Notifier interface {
	SendSuccess(message string) error
	SendWarning(message string) error
}

// RetryPolicy decides which stored outcomes are recomputed on the next run.
// Computed entries are never recomputed.
type RetryPolicy struct {
	RetryNoImagery bool
	RetryFailed    bool
}

func (p RetryPolicy) needsWork(entry results.Entry, ok bool) bool {
	if !ok {
		return true
	}
	switch entry.Status {
	case results.StatusNoImagery:
		return p.RetryNoImagery
	case results.StatusFailed:
		return p.RetryFailed
	}
	return false
}

type Options struct {
	// Workers above 1 resolve and aggregate distinct dates concurrently.
	Workers int
	Retry   RetryPolicy
}

type AnalysisRequest struct {
	// Polygons is the whole dataset in load order.
	Polygons  []model.Polygon
	Selection []string
	Dates     []model.Date
	Store     *results.Store
}

// DateOutcome summarizes one requested date of a run.
type DateOutcome struct {
	Requested model.Date
	Resolved  model.Date
	Status    results.Status
	Polygons  int
	// Skipped dates had every selected polygon already stored.
	Skipped bool
	// Deferred dates were not attempted because the back-end was down; no
	// entries are stored so the next run retries them.
	Deferred bool
	Error    string
}

type Report struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcomes     []DateOutcome
	Warnings     []string
	Errors       []string
	Divergence   map[model.Date]model.Date
	NetworkCalls int
	// AllComputed is set when nothing needed work.
	AllComputed bool
}

func (r *Report) Count(status results.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.Status == status {
			n++
		}
	}
	return n
}

// DeferredCount is the number of dates left for the next run.
func (r *Report) DeferredCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Deferred {
			n++
		}
	}
	return n
}

// Summary is the one-line text used for notifications and the CLI.
func (r *Report) Summary() string {
	if r.AllComputed {
		return "all selected polygons already analyzed for every date"
	}
	summary := fmt.Sprintf("run %s: %d computed, %d without imagery, %d failed, %d warnings",
		r.RunID,
		r.Count(results.StatusComputed),
		r.Count(results.StatusNoImagery),
		r.Count(results.StatusFailed),
		len(r.Warnings))
	if n := r.DeferredCount(); n > 0 {
		summary += fmt.Sprintf(" (%d deferred to the next run)", n)
	}
	return summary
}

type Analyzer struct {
	resolver   SceneResolver
	aggregator BatchAggregator
	options    Options
	metrics    *metrics.Metrics
	logger     *zap.Logger
	notifier   Notifier
	progress   io.Writer
}

func NewAnalyzer(resolver SceneResolver, aggregator BatchAggregator, options Options, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		resolver:   resolver,
		aggregator: aggregator,
		options:    options,
		metrics:    m,
		logger:     logger,
	}
}

func (a *Analyzer) WithNotifier(n Notifier) *Analyzer {
	a.notifier = n
	return a
}

// WithProgress renders a progress bar on w while dates are processed.
func (a *Analyzer) WithProgress(w io.Writer) *Analyzer {
	a.progress = w
	return a
}

type datePlan struct {
	index   int
	date    model.Date
	missing []model.Polygon
}

type dateResult struct {
	scene  *sentinel.Scene
	values map[string]*float64
	err    error
	calls  int
}

// Analyze computes NDVI for every selected polygon and date missing from
// req.Store. The input store is left untouched; the returned store holds the
// previous entries plus the new ones.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (*results.Store, *Report, error) {
	selected, dates, err := validate(req)
	if err != nil {
		return nil, nil, err
	}

	store := results.NewStore()
	if req.Store != nil {
		store = req.Store.Clone()
	}

	report := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		Divergence: make(map[model.Date]model.Date),
	}
	logger := a.logger.With(zap.String("run_id", report.RunID))

	var plan []datePlan
	report.Outcomes = make([]DateOutcome, len(dates))
	for i, date := range dates {
		var missing []model.Polygon
		for _, p := range selected {
			entry, ok := store.Get(p.ID, date)
			if a.options.Retry.needsWork(entry, ok) {
				missing = append(missing, p)
			}
		}
		if len(missing) == 0 {
			report.Outcomes[i] = DateOutcome{Requested: date, Skipped: true}
			continue
		}
		plan = append(plan, datePlan{index: i, date: date, missing: missing})
	}

	if len(plan) == 0 {
		report.AllComputed = true
		report.FinishedAt = time.Now()
		logger.Info("nothing to analyze", zap.Int("dates", len(dates)), zap.Int("polygons", len(selected)))
		return store, report, nil
	}

	logger.Info("starting analysis",
		zap.Int("dates", len(plan)),
		zap.Int("polygons", len(selected)),
		zap.Int("workers", a.options.Workers))

	bar := a.newProgressBar(len(plan))
	outcomes := a.run(ctx, plan, bar)

	for i, p := range plan {
		a.merge(store, report, p, outcomes[i])
	}
	report.FinishedAt = time.Now()
	if bar != nil {
		_ = bar.Finish()
	}

	logger.Info("analysis finished",
		zap.Int("computed", report.Count(results.StatusComputed)),
		zap.Int("no_imagery", report.Count(results.StatusNoImagery)),
		zap.Int("failed", report.Count(results.StatusFailed)),
		zap.Int("network_calls", report.NetworkCalls),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	a.notify(logger, report)
	return store, report, nil
}

func validate(req AnalysisRequest) ([]model.Polygon, []model.Date, error) {
	if len(req.Selection) == 0 {
		return nil, nil, ErrEmptySelection
	}
	if len(req.Dates) == 0 {
		return nil, nil, ErrNoDates
	}

	wanted := make(map[string]bool, len(req.Selection))
	for _, id := range req.Selection {
		wanted[id] = true
	}
	var selected []model.Polygon
	for _, p := range req.Polygons {
		if wanted[p.ID] {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		return nil, nil, ErrEmptySelection
	}

	seen := make(map[model.Date]bool, len(req.Dates))
	dates := make([]model.Date, 0, len(req.Dates))
	for _, d := range req.Dates {
		date, err := model.ParseDate(string(d))
		if err != nil {
			return nil, nil, err
		}
		if seen[date] {
			continue
		}
		seen[date] = true
		dates = append(dates, date)
	}
	return selected, dates, nil
}

// run resolves and aggregates every planned date. Results are indexed like
// plan so merging keeps date order regardless of worker scheduling.
func (a *Analyzer) run(ctx context.Context, plan []datePlan, bar *progressbar.ProgressBar) []dateResult {
	outcomes := make([]dateResult, len(plan))

	if a.options.Workers <= 1 {
		for i, p := range plan {
			outcomes[i] = a.process(ctx, p)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return outcomes
	}

	var mu sync.Mutex
	wp := workerpool.New(a.options.Workers)
	for i, p := range plan {
		i, p := i, p
		wp.Submit(func() {
			r := a.process(ctx, p)
			mu.Lock()
			outcomes[i] = r
			if bar != nil {
				_ = bar.Add(1)
			}
			mu.Unlock()
		})
	}
	wp.StopWait()
	return outcomes
}

func (a *Analyzer) process(ctx context.Context, p datePlan) dateResult {
	var r dateResult
	if err := ctx.Err(); err != nil {
		r.err = err
		return r
	}

	r.calls++
	scene, err := a.resolver.Resolve(ctx, model.UnionBound(p.missing), p.date)
	if err != nil {
		r.err = err
		return r
	}
	if scene == nil {
		return r
	}
	r.scene = scene

	r.calls++
	values, err := a.aggregator.Aggregate(ctx, scene.Date, p.missing)
	if err != nil {
		r.err = err
		return r
	}
	r.values = values
	return r
}

func (a *Analyzer) merge(store *results.Store, report *Report, p datePlan, r dateResult) {
	report.NetworkCalls += r.calls
	outcome := DateOutcome{Requested: p.date, Polygons: len(p.missing)}

	switch {
	case errors.Is(r.err, sentinel.ErrBackendUnavailable):
		outcome.Status = results.StatusFailed
		outcome.Deferred = true
		outcome.Error = utils.Truncate(r.err.Error(), maxErrorMessage)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", p.date, outcome.Error))
		a.logger.Warn("date deferred", zap.String("date", p.date.String()), zap.Error(r.err))

	case r.err != nil:
		outcome.Status = results.StatusFailed
		outcome.Error = utils.Truncate(r.err.Error(), maxErrorMessage)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", p.date, outcome.Error))
		for _, poly := range p.missing {
			store.Set(poly.ID, p.date, results.Entry{ResolvedDate: p.date, Status: results.StatusFailed})
		}
		a.logger.Error("date failed", zap.String("date", p.date.String()), zap.Error(r.err))

	case r.scene == nil:
		outcome.Status = results.StatusNoImagery
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s: no image within ±%d days", p.date, a.resolver.ToleranceDays()))
		for _, poly := range p.missing {
			store.Set(poly.ID, p.date, results.Entry{ResolvedDate: p.date, Status: results.StatusNoImagery})
		}

	default:
		outcome.Status = results.StatusComputed
		outcome.Resolved = r.scene.Date
		if r.scene.Date != p.date {
			report.Divergence[p.date] = r.scene.Date
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: nearest scene %s used", p.date, r.scene.Date))
		}
		for _, poly := range p.missing {
			store.Set(poly.ID, p.date, results.Entry{
				NDVI:         r.values[poly.ID],
				ResolvedDate: r.scene.Date,
				Status:       results.StatusComputed,
			})
		}
	}

	label := string(outcome.Status)
	if outcome.Deferred {
		label = "deferred"
	}
	a.metrics.AnalysisDates.WithLabelValues(label).Inc()
	report.Outcomes[p.index] = outcome
}

func (a *Analyzer) newProgressBar(n int) *progressbar.ProgressBar {
	if a.progress == nil {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(a.progress),
		progressbar.OptionSetDescription("Analyzing dates"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (a *Analyzer) notify(logger *zap.Logger, report *Report) {
	if a.notifier == nil {
		return
	}
	var err error
	if len(report.Errors) > 0 {
		err = a.notifier.SendWarning(report.Summary() + "\n" + strings.Join(report.Errors, "\n"))
	} else {
		err = a.notifier.SendSuccess(report.Summary())
	}
	if err != nil {
		logger.Warn("failed to send run notification", zap.Error(err))
	}
}
