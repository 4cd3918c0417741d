package monitoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeJobs implements JobLister for testing.
type fakeJobs struct {
	jobs    []model.ChangeListJob
	listErr error
	calls   int
}

func (f *fakeJobs) ListJobs(_ context.Context, filter model.JobFilter) ([]model.ChangeListJob, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.ChangeListJob
	for _, j := range f.jobs {
		if !filter.CreatedAfter.IsZero() && j.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

var errListFailed = errors.New("list failed")

func timePtr(t time.Time) *time.Time { return &t }
