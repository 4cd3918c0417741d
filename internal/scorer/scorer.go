package scorer

import (
	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/phone"
)

// Signals are the registry facts known about one phone key.
type Signals struct {
	Active bool
	// Deleted is true when the phone has a deleted-tracking entry; Cycles is
	// its times_added_removed.
	Deleted   bool
	Cycles    int
	Litigator *model.LitigatorEntry
}

// Result is the scoring outcome for one phone.
type Result struct {
	Score  int
	Flags  []model.RiskFlag
	Status model.DNCStatus
}

// Score applies the policy to a phone key and its signals. Keys that are not
// exactly ten digits short-circuit to a caution with score 0.
func Score(key string, s Signals, p Policy) Result {
	if !phone.IsValid(key) {
		return Result{
			Score:  0,
			Flags:  []model.RiskFlag{model.FlagInvalidPhone},
			Status: model.StatusCaution,
		}
	}

	var r Result
	add := func(points int, flag model.RiskFlag) {
		r.Score += points
		r.Flags = append(r.Flags, flag)
	}

	if s.Active {
		add(p.FederalDNC, model.FlagFederalDNC)
	}
	if s.Deleted {
		add(p.RecentlyRemoved, model.FlagRecentlyRemovedDNC)
		if s.Cycles >= p.PatternMinCycles {
			add(p.PatternAddRemove, model.FlagPatternAddRemove)
		}
	}
	if s.Litigator != nil {
		add(p.KnownLitigator, model.FlagKnownLitigator)
		if p.isSerial(*s.Litigator) {
			add(p.SerialLitigator, model.FlagSerialLitigator)
		}
	}

	r.Status = Classify(r.Score, p)
	return r
}

// Classify maps a score to a calling status.
func Classify(score int, p Policy) model.DNCStatus {
	switch {
	case score >= p.BlockedThreshold:
		return model.StatusBlocked
	case score > p.CautionThreshold:
		return model.StatusCaution
	default:
		return model.StatusClean
	}
}
