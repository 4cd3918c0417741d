// Package registry is the storage boundary for the DNC registry, the
// deleted-number tracking set, and the litigator reference list.
package registry

import (
	"context"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// LookupRepository answers set-membership questions for many phones at once.
// Each method must issue a single round-trip regardless of len(phones).
type LookupRepository interface {
	// FindActiveByPhones returns the subset of phones present and active in the registry.
	FindActiveByPhones(ctx context.Context, phones []string) (map[string]bool, error)
	// FindDeletedCycles returns times_added_removed for phones in deleted tracking.
	FindDeletedCycles(ctx context.Context, phones []string) (map[string]int, error)
	// FindLitigators returns litigator records for phones on the litigator list.
	FindLitigators(ctx context.Context, phones []string) (map[string]model.LitigatorEntry, error)
}

// ChangeRepository applies change-list mutations.
type ChangeRepository interface {
	UpsertRegistryEntries(ctx context.Context, entries []model.RegistryEntry) (int64, error)
	// FindActiveByPhone returns nil, nil when the phone is not in the registry.
	FindActiveByPhone(ctx context.Context, phone string) (*model.RegistryEntry, error)
	// FindDeletedTrackingByPhone returns nil, nil when no tracking entry exists.
	FindDeletedTrackingByPhone(ctx context.Context, phone string) (*model.DeletedTrackingEntry, error)
	UpsertDeletedTracking(ctx context.Context, entry model.DeletedTrackingEntry) error
	DeleteByPhone(ctx context.Context, phone string) error
}

// Repository is the full registry store.
type Repository interface {
	LookupRepository
	ChangeRepository
	UpsertLitigators(ctx context.Context, entries []model.LitigatorEntry) (int64, error)
	Close() error
}
