// Package seed runs tracked jobs that populate places and menus for the
// largest metros.
package seed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/discovery"
	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/model"
)

const (
	DefaultRadiusKm  = 10.0
	DefaultTopBrands = 10
)

// Store persists job state and reads brand freshness.
type Store interface {
	CreateSeedJob(ctx context.Context, job *model.SeedJob) error
	UpdateSeedJob(ctx context.Context, job *model.SeedJob) error
	GetSeedJob(ctx context.Context, id string) (*model.SeedJob, error)
	ListSeedJobs(ctx context.Context, limit int) ([]model.SeedJob, error)
	BrandsByID(ctx context.Context, ids []string) ([]model.Brand, error)
}

// Discoverer finds and persists places around a point.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// Importer imports one brand's menu.
type Importer interface {
	Import(ctx context.Context, brandKey string) (*menu.ImportResult, error)
}

// Request starts a seed job. Empty Metros seeds every built-in metro.
type Request struct {
	Metros    []string `json:"metros,omitempty"`
	RadiusKm  float64  `json:"radiusKm,omitempty"`
	TopBrands int      `json:"topBrandsCount,omitempty"`
}

// Options tunes a Runner.
type Options struct {
	RadiusKm    float64
	TopBrands   int
	MetroDelay  time.Duration
	ImportDelay time.Duration
	StaleAfter  time.Duration
}

// Runner executes seed jobs and records their progress.
type Runner struct {
	store    Store
	discover Discoverer
	importer Importer
	opts     Options
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(st Store, d Discoverer, im Importer, opts Options) *Runner {
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = DefaultRadiusKm
	}
	if opts.TopBrands <= 0 {
		opts.TopBrands = DefaultTopBrands
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 7 * 24 * time.Hour
	}
	return &Runner{
		store:    st,
		discover: d,
		importer: im,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

type plan struct {
	metros    []geo.Metro
	radiusKm  float64
	topBrands int
}

func (r *Runner) plan(req Request) (plan, error) {
	p := plan{radiusKm: req.RadiusKm, topBrands: req.TopBrands}
	if p.radiusKm < 0 || p.radiusKm > discovery.MaxRadiusKm {
		return p, model.Invalid("radiusKm", "must be between 0 and %g", discovery.MaxRadiusKm)
	}
	if p.radiusKm == 0 {
		p.radiusKm = r.opts.RadiusKm
	}
	if p.topBrands < 0 {
		return p, model.Invalid("topBrandsCount", "must not be negative")
	}
	if p.topBrands == 0 {
		p.topBrands = r.opts.TopBrands
	}

	if len(req.Metros) == 0 {
		p.metros = geo.TopMetros(0)
		return p, nil
	}
	byName := make(map[string]geo.Metro, len(geo.Metros))
	for _, m := range geo.Metros {
		byName[strings.ToLower(m.Name)] = m
	}
	for _, name := range req.Metros {
		m, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return p, model.Invalid("metros", "unknown metro %q", name)
		}
		p.metros = append(p.metros, m)
	}
	return p, nil
}

// Start records a queued job and runs it in the background, detached from
// ctx cancellation. Poll the store for progress.
func (r *Runner) Start(ctx context.Context, req Request) (*model.SeedJob, error) {
	p, err := r.plan(req)
	if err != nil {
		return nil, err
	}
	job := &model.SeedJob{Status: model.SeedQueued, RadiusKm: p.radiusKm, Total: len(p.metros)}
	if err := r.store.CreateSeedJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "seed: create job")
	}

	snapshot := *job
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.execute(bg, job, p); err != nil {
			zap.L().Error("seed job failed", zap.String("component", "seed"), zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return &snapshot, nil
}

// Run records a job and executes it in the foreground.
func (r *Runner) Run(ctx context.Context, req Request) (*model.SeedJob, error) {
	p, err := r.plan(req)
	if err != nil {
		return nil, err
	}
	job := &model.SeedJob{Status: model.SeedQueued, RadiusKm: p.radiusKm, Total: len(p.metros)}
	if err := r.store.CreateSeedJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "seed: create job")
	}
	if err := r.execute(ctx, job, p); err != nil {
		return job, err
	}
	return job, nil
}

// Wait blocks until background jobs started by Start finish.
func (r *Runner) Wait() { r.wg.Wait() }

// Get returns a job by id.
func (r *Runner) Get(ctx context.Context, id string) (*model.SeedJob, error) {
	job, err := r.store.GetSeedJob(ctx, id)
	return job, eris.Wrapf(err, "seed: get job %s", id)
}

// List returns the most recent jobs.
func (r *Runner) List(ctx context.Context, limit int) ([]model.SeedJob, error) {
	jobs, err := r.store.ListSeedJobs(ctx, limit)
	return jobs, eris.Wrap(err, "seed: list jobs")
}

func (r *Runner) execute(ctx context.Context, job *model.SeedJob, p plan) error {
	log := zap.L().With(zap.String("component", "seed"), zap.String("job_id", job.ID))
	log.Info("seed job started", zap.Int("metros", len(p.metros)), zap.Float64("radius_km", p.radiusKm))

	job.Status = model.SeedRunning
	if err := r.store.UpdateSeedJob(ctx, job); err != nil {
		return r.finish(ctx, job, eris.Wrap(err, "seed: mark running"))
	}

	for i, m := range p.metros {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.MetroDelay); err != nil {
				return r.finish(ctx, job, err)
			}
		}
		out := r.seedMetro(ctx, m, p, log)
		job.Results = append(job.Results, out)
		job.Processed++
		if out.Success {
			job.Succeeded++
		} else {
			job.Failed++
		}
		if err := r.store.UpdateSeedJob(ctx, job); err != nil {
			return r.finish(ctx, job, eris.Wrapf(err, "seed: record %s", m.Name))
		}
		if ctx.Err() != nil {
			return r.finish(ctx, job, ctx.Err())
		}
	}
	return r.finish(ctx, job, nil)
}

// finish marks the job terminal. A cause marks it failed; the job state is
// written on a context that survives cancellation.
func (r *Runner) finish(ctx context.Context, job *model.SeedJob, cause error) error {
	now := r.now().UTC()
	job.CompletedAt = &now
	job.Status = model.SeedComplete
	if cause != nil {
		job.Status = model.SeedFailed
		job.Error = cause.Error()
	}
	if err := r.store.UpdateSeedJob(context.WithoutCancel(ctx), job); err != nil {
		return eris.Wrap(err, "seed: mark finished")
	}
	zap.L().Info("seed job finished",
		zap.String("component", "seed"),
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("succeeded", job.Succeeded),
		zap.Int("failed", job.Failed),
	)
	if cause != nil {
		return eris.Wrap(cause, "seed: job interrupted")
	}
	return nil
}

// seedMetro discovers places around one metro and imports up to topBrands of
// the stale brands found there. Import failures do not fail the metro.
func (r *Runner) seedMetro(ctx context.Context, m geo.Metro, p plan, log *zap.Logger) model.MetroOutcome {
	out := model.MetroOutcome{Metro: m.Name}

	found, err := r.discover.Discover(ctx, discovery.Request{Lat: m.Lat, Lng: m.Lng, RadiusKm: p.radiusKm})
	if err != nil {
		log.Warn("metro discovery failed", zap.String("metro", m.Name), zap.Error(err))
		out.Error = err.Error()
		return out
	}
	out.Places = found.Count
	out.Success = true

	seen := make(map[string]bool)
	var ids []string
	for _, pl := range found.Places {
		if pl.BrandID != "" && !seen[pl.BrandID] {
			seen[pl.BrandID] = true
			ids = append(ids, pl.BrandID)
		}
	}
	if len(ids) == 0 {
		return out
	}
	brands, err := r.store.BrandsByID(ctx, ids)
	if err != nil {
		log.Warn("metro brand lookup failed", zap.String("metro", m.Name), zap.Error(err))
		out.Error = err.Error()
		return out
	}

	now := r.now()
	var keys []string
	for _, b := range brands {
		if len(keys) == p.topBrands {
			break
		}
		if b.IsStale(now, r.opts.StaleAfter) {
			keys = append(keys, b.Key)
		}
	}

	for i, key := range keys {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.ImportDelay); err != nil {
				break
			}
		}
		if _, err := r.importer.Import(ctx, key); err != nil {
			log.Warn("metro brand import failed", zap.String("metro", m.Name), zap.String("brand", key), zap.Error(err))
			continue
		}
		out.BrandsImported++
	}

	log.Info("metro seeded",
		zap.String("metro", m.Name),
		zap.Int("places", out.Places),
		zap.Int("brands_imported", out.BrandsImported),
	)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
