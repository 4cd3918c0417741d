// Package ingest runs change-list jobs: it claims a pending job, streams the
// file through the parser and applier batch by batch, persists progress
// after every batch and finalizes subscription and audit records.
package ingest

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/changelist"
	"github.com/sells-group/dnc-scrub/internal/fetcher"
	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/monitoring"
	"github.com/sells-group/dnc-scrub/internal/phone"
	"github.com/sells-group/dnc-scrub/internal/store"
)

var (
	// ErrJobNotFound is returned when the job id does not exist.
	ErrJobNotFound = store.ErrJobNotFound
	// ErrJobBusy is returned when a job is processing and cannot be run,
	// retried or deleted.
	ErrJobBusy = eris.New("ingest: job is processing")
	// ErrInvalidTransition is returned when the job's status does not allow
	// the requested action.
	ErrInvalidTransition = eris.New("ingest: invalid status transition")
	// ErrChangeTypeMismatch is returned when the request names a different
	// change type than the stored job.
	ErrChangeTypeMismatch = eris.New("ingest: change type does not match job")
	// ErrInvalidJob is returned when a new job fails validation.
	ErrInvalidJob = eris.New("ingest: invalid job")
)

// Notifier is told about completed jobs. Errors are logged, never fatal.
type Notifier interface {
	NotifyJobComplete(ctx context.Context, job model.ChangeListJob) error
}

// Config tunes the controller.
type Config struct {
	BatchSize       int
	MaxErrorDetails int
}

// Request asks the controller to process one job.
type Request struct {
	JobID      string
	ChangeType model.ChangeType
	IsRetry    bool
}

// Claimed is a job this controller moved to processing.
type Claimed struct {
	Job     model.ChangeListJob
	started time.Time
}

// Controller drives ChangeListJobs through their lifecycle.
type Controller struct {
	jobs    store.JobStore
	blobs   fetcher.Fetcher
	applier *changelist.Applier
	notify  Notifier
	metrics *monitoring.Metrics
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

// NewController creates a Controller. notify and metrics may be nil.
func NewController(jobs store.JobStore, blobs fetcher.Fetcher, applier *changelist.Applier, notify Notifier, metrics *monitoring.Metrics, cfg Config) *Controller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Controller{
		jobs:    jobs,
		blobs:   blobs,
		applier: applier,
		notify:  notify,
		metrics: metrics,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "ingest.controller")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a pending job after validating its inputs.
func (c *Controller) Create(ctx context.Context, job model.ChangeListJob) (*model.ChangeListJob, error) {
	if _, err := model.ParseChangeType(string(job.ChangeType)); err != nil {
		return nil, eris.Wrap(ErrInvalidJob, err.Error())
	}
	if job.FilePath == "" {
		return nil, eris.Wrap(ErrInvalidJob, "file path is required")
	}
	for _, ac := range job.AreaCodes {
		if len(ac) != 3 || phone.Digits(ac) != ac {
			return nil, eris.Wrapf(ErrInvalidJob, "invalid area code %q", ac)
		}
	}
	created, err := c.jobs.CreateJob(ctx, job)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create")
	}
	c.log.Info("job created",
		zap.String("job_id", created.ID),
		zap.String("change_type", string(created.ChangeType)),
		zap.Strings("area_codes", created.AreaCodes),
	)
	return created, nil
}

// Get returns one job.
func (c *Controller) Get(ctx context.Context, id string) (*model.ChangeListJob, error) {
	return c.jobs.GetJob(ctx, id)
}

// List returns jobs matching filter, newest first.
func (c *Controller) List(ctx context.Context, filter model.JobFilter) ([]model.ChangeListJob, error) {
	return c.jobs.ListJobs(ctx, filter)
}

// Subscriptions returns per-area-code freshness.
func (c *Controller) Subscriptions(ctx context.Context) ([]model.Subscription, error) {
	return c.jobs.ListSubscriptions(ctx)
}

// Run claims and processes a job synchronously.
func (c *Controller) Run(ctx context.Context, req Request) (*model.ChangeListJob, error) {
	cl, err := c.Claim(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Process(ctx, cl)
}

// Claim validates req and moves the job from pending to processing. With
// IsRetry a completed or failed job is first reset to pending.
func (c *Controller) Claim(ctx context.Context, req Request) (*Claimed, error) {
	job, err := c.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if req.ChangeType != "" && req.ChangeType != job.ChangeType {
		return nil, eris.Wrapf(ErrChangeTypeMismatch, "job %s is %s, request says %s", job.ID, job.ChangeType, req.ChangeType)
	}

	switch {
	case job.Status == model.JobProcessing:
		return nil, eris.Wrapf(ErrJobBusy, "job %s", job.ID)
	case job.Status.Terminal() && !req.IsRetry:
		return nil, eris.Wrapf(ErrInvalidTransition, "job %s is %s; retry it instead", job.ID, job.Status)
	case job.Status.Terminal():
		if err := c.reset(ctx, job.ID); err != nil {
			return nil, err
		}
	}

	started := c.now()
	ok, err := c.jobs.ClaimJob(ctx, job.ID, started)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: claim")
	}
	if !ok {
		return nil, eris.Wrapf(ErrJobBusy, "job %s was claimed elsewhere", job.ID)
	}

	job, err = c.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	c.log.Info("job processing",
		zap.String("job_id", job.ID),
		zap.String("change_type", string(job.ChangeType)),
		zap.Int("retry_count", job.RetryCount),
	)
	return &Claimed{Job: *job, started: started}, nil
}

// Retry resets a completed or failed job to pending without running it.
func (c *Controller) Retry(ctx context.Context, id string) (*model.ChangeListJob, error) {
	job, err := c.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.JobProcessing:
		return nil, eris.Wrapf(ErrJobBusy, "job %s", id)
	case model.JobPending:
		return nil, eris.Wrapf(ErrInvalidTransition, "job %s is already pending", id)
	}
	if err := c.reset(ctx, id); err != nil {
		return nil, err
	}
	return c.jobs.GetJob(ctx, id)
}

func (c *Controller) reset(ctx context.Context, id string) error {
	ok, err := c.jobs.ResetJob(ctx, id, c.now())
	if err != nil {
		return eris.Wrap(err, "ingest: reset")
	}
	if !ok {
		return eris.Wrapf(ErrJobBusy, "job %s changed status during reset", id)
	}
	c.log.Info("job reset for retry", zap.String("job_id", id))
	return nil
}

// Delete removes a job that is not processing.
func (c *Controller) Delete(ctx context.Context, id string) error {
	job, err := c.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == model.JobProcessing {
		return eris.Wrapf(ErrJobBusy, "job %s", id)
	}
	ok, err := c.jobs.DeleteJob(ctx, id)
	if err != nil {
		return eris.Wrap(err, "ingest: delete")
	}
	if !ok {
		return eris.Wrapf(ErrJobBusy, "job %s started processing", id)
	}
	c.log.Info("job deleted", zap.String("job_id", id))
	return nil
}

// Process runs a claimed job to completion. Batch and record failures are
// counted; download, parse, cancellation and store errors fail the job.
func (c *Controller) Process(ctx context.Context, cl *Claimed) (*model.ChangeListJob, error) {
	job := cl.Job
	log := c.log.With(zap.String("job_id", job.ID), zap.String("change_type", string(job.ChangeType)))

	p, areas, err := c.applyFile(ctx, job, log)
	if err == nil {
		err = c.finalize(ctx, job, p, areas, cl.started)
	}
	if err != nil {
		return c.fail(ctx, job, p, cl.started, err, log)
	}

	completed := c.now()
	duration := completed.Sub(cl.started).Milliseconds()
	if err := c.jobs.CompleteJob(ctx, job.ID, p, completed, duration); err != nil {
		return c.fail(ctx, job, p, cl.started, err, log)
	}

	withProgress(&job, p)
	job.Status = model.JobCompleted
	job.ProcessingCompletedAt = &completed
	job.ProcessingDurationMs = duration
	c.metrics.IncJobFinished(string(job.ChangeType), string(job.Status))

	log.Info("job completed",
		zap.Int("total", p.TotalRecords),
		zap.Int("processed", p.ProcessedRecords),
		zap.Int("failed", p.FailedRecords),
		zap.Int("skipped", p.SkippedRecords),
		zap.Int64("duration_ms", duration),
	)

	if c.notify != nil {
		if err := c.notify.NotifyJobComplete(ctx, job); err != nil {
			log.Warn("completion notification failed", zap.Error(err))
		}
	}
	return &job, nil
}

// applyFile downloads, parses and applies the job's file batch by batch. It
// returns the final progress and the area codes seen.
func (c *Controller) applyFile(ctx context.Context, job model.ChangeListJob, log *zap.Logger) (model.JobProgress, []string, error) {
	p := model.JobProgress{Progress: map[string]int{}}

	body, err := c.blobs.Download(ctx, job.FilePath)
	if err != nil {
		return p, nil, eris.Wrapf(err, "ingest: download %s", job.FilePath)
	}
	records, err := changelist.Parse(body, job.AreaCodes)
	body.Close() //nolint:errcheck
	if err != nil {
		return p, nil, eris.Wrapf(err, "ingest: parse %s", job.FilePath)
	}

	batches := changelist.Batches(records, c.cfg.BatchSize)
	areaTotal := make(map[string]int)
	for _, r := range records {
		areaTotal[r.AreaCode]++
	}
	for ac := range areaTotal {
		p.Progress[ac] = 0
	}
	p.TotalRecords = len(records)
	p.TotalBatches = len(batches)
	if len(batches) == 0 {
		p.ProgressPercent = 100
	}
	if err := c.jobs.UpdateProgress(ctx, job.ID, p); err != nil {
		return p, nil, eris.Wrap(err, "ingest: save progress")
	}

	log.Info("change list parsed", zap.Int("records", len(records)), zap.Int("batches", len(batches)))

	areaDone := make(map[string]int)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return p, nil, eris.Wrapf(err, "ingest: cancelled before batch %d of %d", i+1, len(batches))
		}

		res := c.applier.Apply(ctx, job.ChangeType, batch, job.ReleaseDate)
		p.ProcessedRecords += res.Processed
		p.FailedRecords += res.Failed
		p.SkippedRecords += res.Skipped
		p.ErrorDetails = c.appendErrors(p.ErrorDetails, res.Errors)

		for _, r := range batch {
			areaDone[r.AreaCode]++
		}
		for ac, total := range areaTotal {
			p.Progress[ac] = percent(areaDone[ac], total)
		}
		p.CurrentBatch = i + 1
		p.ProgressPercent = percent(i+1, len(batches))

		if err := c.jobs.UpdateProgress(ctx, job.ID, p); err != nil {
			return p, nil, eris.Wrapf(err, "ingest: save progress after batch %d", i+1)
		}
		log.Debug("batch applied",
			zap.Int("batch", i+1),
			zap.Int("of", len(batches)),
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}

	areas := job.AreaCodes
	if len(areas) == 0 {
		for ac := range areaTotal {
			areas = append(areas, ac)
		}
		sort.Strings(areas)
	}
	return p, areas, nil
}

// finalize marks the area codes fresh and writes the completion log.
func (c *Controller) finalize(ctx context.Context, job model.ChangeListJob, p model.JobProgress, areas []string, started time.Time) error {
	at := c.now()
	if err := c.jobs.TouchSubscriptions(ctx, areas, job.ID, at); err != nil {
		return eris.Wrap(err, "ingest: touch subscriptions")
	}

	entry := model.UpdateLog{
		JobID:        job.ID,
		AreaCodes:    areas,
		UpdateType:   job.ChangeType,
		TotalRecords: p.TotalRecords,
		DurationMs:   at.Sub(started).Milliseconds(),
		SourceFile:   job.FilePath,
		ReleaseDate:  job.ReleaseDate,
		CreatedAt:    at,
	}
	if job.ChangeType == model.ChangeAdditions {
		entry.RecordsAdded = p.ProcessedRecords
	} else {
		entry.RecordsRemoved = p.ProcessedRecords
	}
	return eris.Wrap(c.jobs.RecordUpdateLog(ctx, entry), "ingest: record update log")
}

func (c *Controller) fail(ctx context.Context, job model.ChangeListJob, p model.JobProgress, started time.Time, cause error, log *zap.Logger) (*model.ChangeListJob, error) {
	// The job must leave processing even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	failed := c.now()
	duration := failed.Sub(started).Milliseconds()
	msg := cause.Error()

	if err := c.jobs.FailJob(ctx, job.ID, msg, p, failed, duration); err != nil {
		log.Error("could not mark job failed", zap.Error(err), zap.NamedError("cause", cause))
	}
	c.metrics.IncJobFinished(string(job.ChangeType), string(model.JobFailed))
	log.Error("job failed", zap.Error(cause), zap.Int64("duration_ms", duration))

	withProgress(&job, p)
	job.Status = model.JobFailed
	job.ErrorMessage = msg
	job.ProcessingCompletedAt = &failed
	job.ProcessingDurationMs = duration
	return &job, cause
}

func (c *Controller) appendErrors(have, add []string) []string {
	for _, e := range add {
		if c.cfg.MaxErrorDetails > 0 && len(have) >= c.cfg.MaxErrorDetails {
			break
		}
		have = append(have, e)
	}
	return have
}

func withProgress(job *model.ChangeListJob, p model.JobProgress) {
	job.TotalRecords = p.TotalRecords
	job.ProcessedRecords = p.ProcessedRecords
	job.FailedRecords = p.FailedRecords
	job.SkippedRecords = p.SkippedRecords
	job.ProgressPercent = p.ProgressPercent
	job.Progress = p.Progress
	job.CurrentBatch = p.CurrentBatch
	job.TotalBatches = p.TotalBatches
	job.ErrorDetails = p.ErrorDetails
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
