package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/model"
)

func TestWriteProcessedCSV(t *testing.T) {
	leads := []model.ProcessedLead{
		{
			Fields:      map[string]any{"name": "Alice", "company": "Acme"},
			PhoneNumber: "8015550001",
			RiskScore:   0,
			DNCStatus:   model.StatusClean,
		},
		{
			Fields:      map[string]any{"name": "Bob"},
			PhoneNumber: "8015550002",
			RiskScore:   100,
			RiskFlags:   []model.RiskFlag{model.FlagFederalDNC, model.FlagKnownLitigator},
			DNCStatus:   model.StatusBlocked,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeProcessedCSV(&buf, leads))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"company", "name", "phone_number", "risk_score", "risk_flags", "dnc_status"}, rows[0])
	assert.Equal(t, []string{"Acme", "Alice", "8015550001", "0", "", "clean"}, rows[1])
	assert.Equal(t, []string{"", "Bob", "8015550002", "100", "federal_dnc;known_litigator", "blocked"}, rows[2])
}

func TestWriteProcessedJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeProcessedJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestFormatJobsList(t *testing.T) {
	jobs := []model.ChangeListJob{
		{
			ID:               "0123456789abcdef",
			ChangeType:       model.ChangeAdditions,
			AreaCodes:        []string{"801", "385"},
			Status:           model.JobCompleted,
			ProgressPercent:  100,
			ProcessedRecords: 42,
			CreatedAt:        time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC),
		},
		{ID: "short", ChangeType: model.ChangeDeletions, Status: model.JobPending},
	}

	var buf bytes.Buffer
	formatJobsList(&buf, jobs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "801,385")
	assert.Contains(t, out, "2026-10-01 12:30")
	assert.Contains(t, out, "all")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestFormatJobDetail(t *testing.T) {
	var buf bytes.Buffer
	formatJobDetail(&buf, &model.ChangeListJob{
		ID:           "job-1",
		ChangeType:   model.ChangeDeletions,
		Status:       model.JobFailed,
		ErrorMessage: "connection lost",
		ErrorDetails: []string{"batch 2: timeout"},
	})
	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "connection lost")
	assert.Contains(t, out, "batch 2: timeout")
}

func TestFormatStats(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, check.Stats{
		Total:          4,
		Clean:          3,
		Blocked:        1,
		FlagCounts:     map[string]int{"federal_dnc": 1},
		ComplianceRate: 75,
		AreaCodes:      []string{"385", "801"},
	})
	out := buf.String()
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "385,801")
	assert.Contains(t, out, "federal_dnc")
	assert.NotContains(t, out, "known_litigator")
}

func TestParseLitigatorsCSV(t *testing.T) {
	in := "Phone,Case_Count,Risk_Level\n" +
		"(801) 555-0001,2,HIGH\n" +
		"1-385-555-0002,7,critical\n" +
		"123,1,low\n" +
		"8015550003,many,low\n" +
		"8015550004,1,extreme\n"

	entries, rejected, err := parseLitigatorsCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []model.LitigatorEntry{
		{Phone: "8015550001", CaseCount: 2, RiskLevel: model.RiskLevelHigh},
		{Phone: "3855550002", CaseCount: 7, RiskLevel: model.RiskLevelCritical},
	}, entries)
	require.Len(t, rejected, 3)
	assert.Contains(t, rejected[0], "line 4")
}

func TestParseLitigatorsCSV_MissingColumn(t *testing.T) {
	_, _, err := parseLitigatorsCSV(context.Background(), strings.NewReader("phone,cases\n8015550001,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case_count")
}
