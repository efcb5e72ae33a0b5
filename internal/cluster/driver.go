package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Locker is the exclusive run lock. TryLock must not block: a second run
// attempted while one is in progress fails fast with a busy signal.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Options configures one pipeline run. Thresholds arrive pre-resolved:
// progressive decay across scheduled invocations is an external tuning
// knob applied by the caller, never state the engine keeps.
type Options struct {
	Threshold       float64
	MergeThreshold  float64
	EmbeddingDim    int
	BatchLimit      int
	StalenessWindow time.Duration
	Retry           RetryPolicy
}

// Validate checks the threshold contract: both in (0,1), merge at least as
// strict as join.
func (o Options) Validate() error {
	if o.Threshold <= 0 || o.Threshold >= 1 {
		return fmt.Errorf("threshold %v out of range (0,1)", o.Threshold)
	}
	if o.MergeThreshold <= 0 || o.MergeThreshold >= 1 {
		return fmt.Errorf("merge threshold %v out of range (0,1)", o.MergeThreshold)
	}
	if o.MergeThreshold < o.Threshold {
		return fmt.Errorf("merge threshold %v below threshold %v", o.MergeThreshold, o.Threshold)
	}
	if o.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension %d must be positive", o.EmbeddingDim)
	}
	return nil
}

// RunSummary is the user-visible result of one pipeline run. A partially
// failed run still produces a summary; only lock contention or repository
// unavailability abort.
type RunSummary struct {
	Processed       int                 `json:"processed"`
	Joined          int                 `json:"joined"`
	Created         int                 `json:"created"`
	Pending         int                 `json:"pending"`
	Skipped         int                 `json:"skipped"`
	SkipReasons     map[int64]string    `json:"skip_reasons,omitempty"`
	PreMaintenance  *MaintenanceSummary `json:"pre_maintenance,omitempty"`
	PostMaintenance *MaintenanceSummary `json:"post_maintenance,omitempty"`
	Duration        time.Duration       `json:"duration"`
}

// Driver orchestrates one clustering run: lock, maintenance pre-pass,
// sequential assignment of unclustered articles, maintenance post-pass,
// unlock.
type Driver struct {
	repo Repository
	lock Locker
	opts Options
}

// NewDriver builds a pipeline driver. Options are validated on Run.
func NewDriver(repo Repository, lock Locker, opts Options) *Driver {
	return &Driver{repo: repo, lock: lock, opts: opts}
}

// Run executes one full pipeline run. Returns ErrPipelineBusy without
// touching the repository when another run holds the lock. Per-article
// failures are recorded in the summary and never abort the run.
func (d *Driver) Run(ctx context.Context) (*RunSummary, error) {
	if err := d.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}

	acquired, err := d.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, ErrPipelineBusy
	}
	defer func() {
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			log.Error().Err(unlockErr).Msg("Failed to release run lock")
		}
	}()

	start := time.Now()
	log.Info().
		Float64("threshold", d.opts.Threshold).
		Float64("merge_threshold", d.opts.MergeThreshold).
		Msg("Starting clustering run")

	maintenance := NewMaintenance(d.repo, d.opts.EmbeddingDim, d.opts.StalenessWindow)

	summary := &RunSummary{SkipReasons: make(map[int64]string)}

	summary.PreMaintenance, err = maintenance.PrePass(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance pre-pass: %w", err)
	}

	articles, err := d.repo.UnclusteredArticles(ctx, d.opts.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch unclustered articles: %w", err)
	}
	clusters, err := d.repo.Clusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch clusters: %w", err)
	}

	assigner := NewAssigner(d.repo, clusters, d.opts.Threshold, d.opts.MergeThreshold, d.opts.EmbeddingDim, d.opts.Retry)

	for _, article := range articles {
		if ctx.Err() != nil {
			// Interrupted between articles; committed state is consistent
			// and maintenance heals the rest next run.
			return summary, ctx.Err()
		}

		assignment, assignErr := assigner.Assign(ctx, article)
		summary.Processed++
		switch assignment.Outcome {
		case OutcomeJoined:
			summary.Joined++
		case OutcomeCreated:
			summary.Created++
		case OutcomePending:
			summary.Pending++
		case OutcomeSkipped:
			summary.Skipped++
			summary.SkipReasons[article.ID] = assignment.Reason
		}
		_ = assignErr // already logged and accounted; per-article errors never abort the run
	}

	summary.PostMaintenance, err = maintenance.PostPass(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance post-pass: %w", err)
	}

	summary.Duration = time.Since(start)
	log.Info().
		Int("processed", summary.Processed).
		Int("joined", summary.Joined).
		Int("created", summary.Created).
		Int("pending", summary.Pending).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Clustering run complete")

	return summary, nil
}
