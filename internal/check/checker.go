// Package check scores batches of leads against the DNC registry.
package check

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/monitoring"
	"github.com/sells-group/dnc-scrub/internal/phone"
	"github.com/sells-group/dnc-scrub/internal/registry"
	"github.com/sells-group/dnc-scrub/internal/scorer"
)

// Lookuper resolves registry membership for a set of phone keys in one call.
type Lookuper interface {
	Lookup(ctx context.Context, phones []string) (*registry.LookupResult, error)
}

// Checker runs leads through normalization, one batched lookup and scoring.
type Checker struct {
	lookup  Lookuper
	policy  scorer.Policy
	metrics *monitoring.Metrics
}

// NewChecker creates a Checker. metrics may be nil.
func NewChecker(lookup Lookuper, policy scorer.Policy, metrics *monitoring.Metrics) *Checker {
	return &Checker{lookup: lookup, policy: policy, metrics: metrics}
}

// Check scores leads with a single registry lookup for the whole slice.
// Output order matches input order. The only error source is the lookup.
func (c *Checker) Check(ctx context.Context, leads []model.Lead) ([]model.ProcessedLead, error) {
	keys := make([]string, len(leads))
	for i, l := range leads {
		keys[i] = phone.Normalize(l.PhoneNumber)
	}

	res := &registry.LookupResult{}
	if len(phone.Unique(keys)) > 0 {
		start := time.Now()
		var err error
		res, err = c.lookup.Lookup(ctx, keys)
		if err != nil {
			return nil, eris.Wrap(err, "check: registry lookup")
		}
		c.metrics.ObserveLookup(time.Since(start))
	}

	out := make([]model.ProcessedLead, len(leads))
	for i, l := range leads {
		r := scorer.Score(keys[i], signalsFor(keys[i], res), c.policy)
		out[i] = model.ProcessedLead{
			Fields:      l.Fields,
			PhoneNumber: keys[i],
			RiskScore:   r.Score,
			RiskFlags:   r.Flags,
			DNCStatus:   r.Status,
		}
		c.metrics.IncLeadChecked(string(r.Status), flagNames(r.Flags))
	}
	return out, nil
}

// CheckChunked splits leads into chunks of size and checks up to concurrency
// chunks at a time. Each chunk does its own lookup; results are returned in
// input order. Any chunk failure fails the whole call.
func (c *Checker) CheckChunked(ctx context.Context, leads []model.Lead, size, concurrency int) ([]model.ProcessedLead, error) {
	if size <= 0 || len(leads) <= size {
		return c.Check(ctx, leads)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	chunks := (len(leads) + size - 1) / size
	results := make([][]model.ProcessedLead, chunks)

	log := zap.L().With(zap.String("component", "check.chunked"))
	log.Debug("checking leads in chunks",
		zap.Int("leads", len(leads)),
		zap.Int("chunks", chunks),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < chunks; i++ {
		lo := i * size
		hi := min(lo+size, len(leads))
		g.Go(func() error {
			out, err := c.Check(gctx, leads[lo:hi])
			if err != nil {
				return eris.Wrapf(err, "check: chunk %d", i)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.ProcessedLead, 0, len(leads))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func signalsFor(key string, res *registry.LookupResult) scorer.Signals {
	s := scorer.Signals{Active: res.Active[key]}
	if n, ok := res.DeletedCycles[key]; ok {
		s.Deleted = true
		s.Cycles = n
	}
	if l, ok := res.Litigators[key]; ok {
		s.Litigator = &l
	}
	return s
}

func flagNames(flags []model.RiskFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
