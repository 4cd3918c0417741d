package changelist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/monitoring"
	"github.com/sells-group/dnc-scrub/internal/registry"
	"github.com/sells-group/dnc-scrub/internal/resilience"
)

// BatchResult counts the outcome of applying one batch.
type BatchResult struct {
	Processed int
	Failed    int
	Skipped   int
	Errors    []string
}

// ApplierConfig configures an Applier.
type ApplierConfig struct {
	// Source is stamped on registry and tracking rows (e.g. "ftc").
	Source string
	// TrackingTTL is how long a deleted-tracking entry lives after its last deletion.
	TrackingTTL time.Duration
	// Retry governs additions batch writes.
	Retry resilience.RetryConfig
	// MaxErrors caps BatchResult.Errors. Zero means no cap.
	MaxErrors int
}

// DefaultApplierConfig returns the standard FTC settings.
func DefaultApplierConfig() ApplierConfig {
	return ApplierConfig{
		Source:      "ftc",
		TrackingTTL: 90 * 24 * time.Hour,
		Retry:       resilience.DefaultRetryConfig(),
		MaxErrors:   50,
	}
}

// Applier writes parsed change-list batches to the registry.
type Applier struct {
	repo    registry.ChangeRepository
	cfg     ApplierConfig
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewApplier creates an Applier. metrics may be nil.
func NewApplier(repo registry.ChangeRepository, cfg ApplierConfig, metrics *monitoring.Metrics) *Applier {
	if cfg.Source == "" {
		cfg.Source = "ftc"
	}
	if cfg.TrackingTTL <= 0 {
		cfg.TrackingTTL = 90 * 24 * time.Hour
	}
	return &Applier{
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply dispatches batch to the additions or deletions path.
func (a *Applier) Apply(ctx context.Context, ct model.ChangeType, batch []Record, releaseDate *time.Time) BatchResult {
	start := time.Now()
	var res BatchResult
	switch ct {
	case model.ChangeAdditions:
		res = a.ApplyAdditions(ctx, batch, releaseDate)
	case model.ChangeDeletions:
		res = a.ApplyDeletions(ctx, batch)
	default:
		res = BatchResult{Failed: len(batch), Errors: []string{fmt.Sprintf("unknown change type %q", ct)}}
	}
	a.metrics.ObserveBatch(string(ct), time.Since(start))
	a.metrics.AddChangeRecords(string(ct), res.Processed, res.Failed, res.Skipped)
	return res
}

// ApplyAdditions upserts the whole batch as active registry entries. A write
// is retried per the retry policy; if every attempt fails the entire batch
// counts as failed.
func (a *Applier) ApplyAdditions(ctx context.Context, batch []Record, releaseDate *time.Time) BatchResult {
	if len(batch) == 0 {
		return BatchResult{}
	}
	log := zap.L().With(zap.String("component", "changelist.applier"))

	now := a.now()
	entries := make([]model.RegistryEntry, len(batch))
	for i, r := range batch {
		entries[i] = model.RegistryEntry{
			Phone:        r.Phone,
			AreaCode:     r.AreaCode,
			Source:       a.cfg.Source,
			DateAdded:    now,
			LastVerified: now,
			ReleaseDate:  releaseDate,
			IsActive:     true,
		}
	}

	retry := a.cfg.Retry
	onRetry := resilience.RetryLogger("changelist.applier", "upsert additions")
	retry.OnRetry = func(attempt int, err error) {
		a.metrics.IncBatchRetry(string(model.ChangeAdditions))
		onRetry(attempt, err)
	}

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		_, err := a.repo.UpsertRegistryEntries(ctx, entries)
		return err
	})
	if err != nil {
		log.Error("additions batch failed after retries",
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		return BatchResult{
			Failed: len(batch),
			Errors: []string{fmt.Sprintf("batch of %d records: %v", len(batch), err)},
		}
	}
	return BatchResult{Processed: len(batch)}
}

// ApplyDeletions removes each record from the registry in order, moving it
// into deleted tracking. Records not in the registry are skipped and leave
// tracking untouched. A failure on one record does not stop the batch.
func (a *Applier) ApplyDeletions(ctx context.Context, batch []Record) BatchResult {
	log := zap.L().With(zap.String("component", "changelist.applier"))

	var res BatchResult
	for _, r := range batch {
		skipped, err := a.deleteOne(ctx, r)
		switch {
		case err != nil:
			res.Failed++
			a.addError(&res, fmt.Sprintf("%s: %v", r.Phone, err))
			log.Warn("deletion failed", zap.String("phone", r.Phone), zap.Error(err))
		case skipped:
			res.Skipped++
		default:
			res.Processed++
		}
	}
	return res
}

func (a *Applier) deleteOne(ctx context.Context, r Record) (skipped bool, err error) {
	entry, err := a.repo.FindActiveByPhone(ctx, r.Phone)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return true, nil
	}

	now := a.now()
	tracking, err := a.repo.FindDeletedTrackingByPhone(ctx, r.Phone)
	if err != nil {
		return false, err
	}

	if tracking != nil {
		tracking.TimesAddedRemoved++
		tracking.DeletedFromDNC = now
		tracking.DeleteAfter = now.Add(a.cfg.TrackingTTL)
		tracking.AreaCode = r.AreaCode
		if entry.State != "" {
			tracking.State = entry.State
		}
	} else {
		tracking = &model.DeletedTrackingEntry{
			Phone:             r.Phone,
			AreaCode:          r.AreaCode,
			State:             entry.State,
			DeletedFromDNC:    now,
			OriginalAddDate:   entry.DateAdded,
			TimesAddedRemoved: 1,
			DeleteAfter:       now.Add(a.cfg.TrackingTTL),
			Source:            a.cfg.Source,
		}
	}

	if err := a.repo.UpsertDeletedTracking(ctx, *tracking); err != nil {
		return false, err
	}
	if err := a.repo.DeleteByPhone(ctx, r.Phone); err != nil {
		return false, err
	}
	return false, nil
}

func (a *Applier) addError(res *BatchResult, msg string) {
	if a.cfg.MaxErrors > 0 && len(res.Errors) >= a.cfg.MaxErrors {
		return
	}
	res.Errors = append(res.Errors, msg)
}
