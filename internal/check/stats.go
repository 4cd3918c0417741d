package check

import (
	"math"
	"sort"

	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/phone"
)

// Stats summarizes a scored batch.
type Stats struct {
	Total            int            `json:"total"`
	Clean            int            `json:"clean"`
	Caution          int            `json:"caution"`
	Blocked          int            `json:"blocked"`
	FlagCounts       map[string]int `json:"flag_counts"`
	AverageRiskScore int            `json:"average_risk_score"`
	ComplianceRate   int            `json:"compliance_rate"`
	AreaCodes        []string       `json:"area_codes"`
}

// Summarize reduces processed leads to Stats. An empty batch is fully
// compliant. Area codes come from valid phone keys only and are sorted.
func Summarize(leads []model.ProcessedLead) Stats {
	s := Stats{
		Total:      len(leads),
		FlagCounts: map[string]int{},
		AreaCodes:  []string{},
	}
	if s.Total == 0 {
		s.ComplianceRate = 100
		return s
	}

	var scoreSum int
	areas := map[string]struct{}{}
	for _, l := range leads {
		switch l.DNCStatus {
		case model.StatusClean:
			s.Clean++
		case model.StatusCaution:
			s.Caution++
		case model.StatusBlocked:
			s.Blocked++
		}
		for _, f := range l.RiskFlags {
			s.FlagCounts[string(f)]++
		}
		scoreSum += l.RiskScore
		if ac := phone.AreaCode(l.PhoneNumber); ac != "" {
			areas[ac] = struct{}{}
		}
	}

	s.AverageRiskScore = int(math.Round(float64(scoreSum) / float64(s.Total)))
	s.ComplianceRate = int(math.Round(float64(s.Clean) / float64(s.Total) * 100))
	for ac := range areas {
		s.AreaCodes = append(s.AreaCodes, ac)
	}
	sort.Strings(s.AreaCodes)
	return s
}
