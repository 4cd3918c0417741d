package registry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/phone"
)

// LookupResult holds the three membership sets for one batch of phones.
type LookupResult struct {
	Active        map[string]bool
	DeletedCycles map[string]int
	Litigators    map[string]model.LitigatorEntry
}

// Gateway performs batched registry lookups: three reads per call, however
// many phones are asked about.
type Gateway struct {
	repo LookupRepository
}

// NewGateway creates a Gateway over repo.
func NewGateway(repo LookupRepository) *Gateway {
	return &Gateway{repo: repo}
}

// Lookup resolves active, deleted-tracking, and litigator membership for
// phones. Invalid and duplicate keys are dropped before querying. If any read
// fails the whole lookup fails; partial results are never returned.
func (g *Gateway) Lookup(ctx context.Context, phones []string) (*LookupResult, error) {
	keys := phone.Unique(phones)
	res := &LookupResult{
		Active:        map[string]bool{},
		DeletedCycles: map[string]int{},
		Litigators:    map[string]model.LitigatorEntry{},
	}
	if len(keys) == 0 {
		return res, nil
	}

	start := time.Now()
	var (
		active     map[string]bool
		cycles     map[string]int
		litigators map[string]model.LitigatorEntry
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		active, err = g.repo.FindActiveByPhones(gctx, keys)
		return eris.Wrap(err, "registry: lookup active")
	})
	eg.Go(func() error {
		var err error
		cycles, err = g.repo.FindDeletedCycles(gctx, keys)
		return eris.Wrap(err, "registry: lookup deleted tracking")
	})
	eg.Go(func() error {
		var err error
		litigators, err = g.repo.FindLitigators(gctx, keys)
		return eris.Wrap(err, "registry: lookup litigators")
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if active != nil {
		res.Active = active
	}
	if cycles != nil {
		res.DeletedCycles = cycles
	}
	if litigators != nil {
		res.Litigators = litigators
	}

	zap.L().Debug("registry: lookup complete",
		zap.Int("phones", len(keys)),
		zap.Int("active", len(res.Active)),
		zap.Int("deleted", len(res.DeletedCycles)),
		zap.Int("litigators", len(res.Litigators)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
