// Package scorer assigns a risk score, flag set and calling status to a
// phone number from its registry signals.
package scorer

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// Policy holds the additive weights and status thresholds.
type Policy struct {
	FederalDNC       int `yaml:"federal_dnc"`
	RecentlyRemoved  int `yaml:"recently_removed_dnc"`
	PatternAddRemove int `yaml:"pattern_add_remove"`
	KnownLitigator   int `yaml:"known_litigator"`
	SerialLitigator  int `yaml:"serial_litigator"`

	// PatternMinCycles is the add/remove count at which pattern_add_remove applies.
	PatternMinCycles int `yaml:"pattern_min_cycles"`
	// SerialCaseCount: a litigator with more cases than this is serial.
	SerialCaseCount  int               `yaml:"serial_case_count"`
	SerialRiskLevels []model.RiskLevel `yaml:"serial_risk_levels"`

	BlockedThreshold int `yaml:"blocked_threshold"`
	CautionThreshold int `yaml:"caution_threshold"`
}

// DefaultPolicy returns the standard scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		FederalDNC:       60,
		RecentlyRemoved:  20,
		PatternAddRemove: 15,
		KnownLitigator:   25,
		SerialLitigator:  10,

		PatternMinCycles: 2,
		SerialCaseCount:  5,
		SerialRiskLevels: []model.RiskLevel{model.RiskLevelCritical},

		BlockedThreshold: 60,
		CautionThreshold: 20,
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep their
// default values. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "scorer: read policy %s", path)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, eris.Wrapf(err, "scorer: parse policy %s", path)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that the policy is internally consistent. An active DNC
// listing on its own must always be enough to block.
func (p Policy) Validate() error {
	var errs []string

	weights := []struct {
		name string
		v    int
	}{
		{"federal_dnc", p.FederalDNC},
		{"recently_removed_dnc", p.RecentlyRemoved},
		{"pattern_add_remove", p.PatternAddRemove},
		{"known_litigator", p.KnownLitigator},
		{"serial_litigator", p.SerialLitigator},
	}
	for _, w := range weights {
		if w.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	if p.CautionThreshold < 0 {
		errs = append(errs, "caution_threshold must be >= 0")
	}
	if p.BlockedThreshold <= p.CautionThreshold {
		errs = append(errs, "blocked_threshold must be > caution_threshold")
	}
	if p.FederalDNC < p.BlockedThreshold {
		errs = append(errs, fmt.Sprintf("federal_dnc (%d) must reach blocked_threshold (%d)", p.FederalDNC, p.BlockedThreshold))
	}
	if p.PatternMinCycles < 1 {
		errs = append(errs, "pattern_min_cycles must be >= 1")
	}
	if p.SerialCaseCount < 0 {
		errs = append(errs, "serial_case_count must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (p Policy) isSerial(l model.LitigatorEntry) bool {
	if l.CaseCount > p.SerialCaseCount {
		return true
	}
	for _, lvl := range p.SerialRiskLevels {
		if l.RiskLevel == lvl {
			return true
		}
	}
	return false
}
