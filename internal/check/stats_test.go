package check

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dnc-scrub/internal/model"
)

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 100, s.ComplianceRate)
	assert.Equal(t, 0, s.AverageRiskScore)
	assert.Empty(t, s.FlagCounts)
	assert.Empty(t, s.AreaCodes)
}

func TestSummarize_Mixed(t *testing.T) {
	leads := []model.ProcessedLead{
		{PhoneNumber: "8015550001", RiskScore: 60, RiskFlags: []model.RiskFlag{model.FlagFederalDNC}, DNCStatus: model.StatusBlocked},
		{PhoneNumber: "3855550002", RiskScore: 35, RiskFlags: []model.RiskFlag{model.FlagRecentlyRemovedDNC, model.FlagPatternAddRemove}, DNCStatus: model.StatusCaution},
		{PhoneNumber: "8015550003", RiskScore: 0, DNCStatus: model.StatusClean},
		{PhoneNumber: "123", RiskScore: 0, RiskFlags: []model.RiskFlag{model.FlagInvalidPhone}, DNCStatus: model.StatusCaution},
	}

	s := Summarize(leads)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Blocked)
	assert.Equal(t, 2, s.Caution)
	assert.Equal(t, 1, s.Clean)
	assert.Equal(t, 24, s.AverageRiskScore, "95/4 rounds to 24")
	assert.Equal(t, 25, s.ComplianceRate)
	assert.Equal(t, map[string]int{
		"federal_dnc":          1,
		"recently_removed_dnc": 1,
		"pattern_add_remove":   1,
		"invalid_phone_number": 1,
	}, s.FlagCounts)
	assert.Equal(t, []string{"385", "801"}, s.AreaCodes)
}

func TestSummarize_ComplianceRounding(t *testing.T) {
	leads := []model.ProcessedLead{
		{PhoneNumber: "8015550001", DNCStatus: model.StatusClean},
		{PhoneNumber: "8015550002", DNCStatus: model.StatusClean},
		{PhoneNumber: "8015550003", RiskScore: 60, DNCStatus: model.StatusBlocked},
	}
	s := Summarize(leads)
	assert.Equal(t, 67, s.ComplianceRate)
	assert.Equal(t, 20, s.AverageRiskScore)
}
