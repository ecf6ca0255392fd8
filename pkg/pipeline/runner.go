// Package pipeline drives the resolution passes: deterministic
// resolution of new observations, candidate generation, and auto-merge,
// in that order, per entity type.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	cctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/settings"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver processes unprocessed observations deterministically
type Resolver interface {
	ProcessBatch(ctx context.Context, limit int) (models.ResolutionResult, error)
}

// Generator produces scored match candidates for one entity type
type Generator interface {
	Run(ctx context.Context, entityType models.EntityType, cfg *settings.Settings) (models.CandidateRunResult, error)
}

// Merger applies auto-merges to open candidates of one entity type
type Merger interface {
	ApplyAutoMerges(ctx context.Context, entityType models.EntityType, cfg *settings.Settings) (models.MergeRunResult, error)
}

// Config holds pipeline runner configuration
type Config struct {
	Interval          time.Duration
	ResolverBatchSize int
	AutoMergeEnabled  bool
}

// PassResult aggregates the outcome of one full pipeline pass
type PassResult struct {
	Resolution models.ResolutionResult                        `json:"resolution"`
	Candidates map[models.EntityType]models.CandidateRunResult `json:"candidates"`
	Merges     map[models.EntityType]models.MergeRunResult     `json:"merges"`
}

// Runner schedules pipeline passes on a fixed interval
type Runner struct {
	resolver  Resolver
	generator Generator
	merger    Merger
	settings  settings.Store
	cfg       Config
	logger    ectologger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a pipeline runner
func NewRunner(resolver Resolver, generator Generator, merger Merger, settingsStore settings.Store, cfg Config, logger ectologger.Logger) *Runner {
	return &Runner{
		resolver:  resolver,
		generator: generator,
		merger:    merger,
		settings:  settingsStore,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start begins running passes on the configured interval
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"interval": r.cfg.Interval.String(),
	}).Info("Pipeline runner started")
	return nil
}

// Stop gracefully stops the runner
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.WithContext(ctx).Info("Pipeline runner stopping")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("Pipeline pass failed")
			}
		}
	}
}

// RunOnce executes one full pipeline pass. A failure in one entity
// type's stage stops the pass; completed stages stand since every stage
// is idempotent.
func (r *Runner) RunOnce(ctx context.Context) (*PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Runner.RunOnce")
	defer span.End()

	// tag the pass so log lines from its stages correlate
	ctx = cctx.SetBatchID(ctx, uuid.New().String())

	result := &PassResult{
		Candidates: make(map[models.EntityType]models.CandidateRunResult),
		Merges:     make(map[models.EntityType]models.MergeRunResult),
	}

	resolution, err := r.resolver.ProcessBatch(ctx, r.cfg.ResolverBatchSize)
	if err != nil {
		return nil, err
	}
	result.Resolution = resolution

	for _, entityType := range models.AllEntityTypes {
		cfg, err := settings.Resolve(ctx, r.settings, entityType)
		if err != nil {
			return nil, err
		}

		candidates, err := r.generator.Run(ctx, entityType, cfg)
		if err != nil {
			return nil, err
		}
		result.Candidates[entityType] = candidates

		if !r.cfg.AutoMergeEnabled {
			continue
		}

		merges, err := r.merger.ApplyAutoMerges(ctx, entityType, cfg)
		if err != nil {
			return nil, err
		}
		result.Merges[entityType] = merges
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":          cctx.GetBatchID(ctx),
		"observations_seen": result.Resolution.ObservationsSeen,
		"entities_created":  result.Resolution.EntitiesCreated,
	}).Info("Pipeline pass complete")

	return result, nil
}
