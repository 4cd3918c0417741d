package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/model"
)

func formatStats(out io.Writer, s check.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Clean\t%d\n", s.Clean)
	_, _ = fmt.Fprintf(w, "Caution\t%d\n", s.Caution)
	_, _ = fmt.Fprintf(w, "Blocked\t%d\n", s.Blocked)
	_, _ = fmt.Fprintf(w, "Average risk score\t%d\n", s.AverageRiskScore)
	_, _ = fmt.Fprintf(w, "Compliance rate\t%d%%\n", s.ComplianceRate)
	_, _ = fmt.Fprintf(w, "Area codes\t%s\n", strings.Join(s.AreaCodes, ","))
	for _, f := range model.AllFlags {
		if n := s.FlagCounts[string(f)]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s\t%d\n", f, n)
		}
	}
	_ = w.Flush()
}

// writeProcessedCSV writes pass-through columns (sorted) followed by the
// enrichment columns.
func writeProcessedCSV(out io.Writer, leads []model.ProcessedLead) error {
	fieldSet := map[string]struct{}{}
	for _, l := range leads {
		for k := range l.Fields {
			fieldSet[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	w := csv.NewWriter(out)
	header := append(append([]string{}, fields...), "phone_number", "risk_score", "risk_flags", "dnc_status")
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for _, l := range leads {
		row := make([]string, 0, len(header))
		for _, f := range fields {
			v, ok := l.Fields[f]
			if !ok || v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(v))
		}
		flags := make([]string, len(l.RiskFlags))
		for i, f := range l.RiskFlags {
			flags[i] = string(f)
		}
		row = append(row, l.PhoneNumber, strconv.Itoa(l.RiskScore), strings.Join(flags, ";"), string(l.DNCStatus))
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}

func writeProcessedJSON(out io.Writer, leads []model.ProcessedLead) error {
	if leads == nil {
		leads = []model.ProcessedLead{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(leads), "write json")
}

func formatJobsList(out io.Writer, jobs []model.ChangeListJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tAREAS\tSTATUS\tPROGRESS\tPROCESSED\tFAILED\tSKIPPED\tRETRIES\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t--------\t---------\t------\t-------\t-------\t-------")

	for _, j := range jobs {
		areas := strings.Join(j.AreaCodes, ",")
		if areas == "" {
			areas = "all"
		}
		if len(areas) > 20 {
			areas = areas[:17] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(j.ID),
			j.ChangeType,
			areas,
			j.Status,
			j.ProgressPercent,
			j.ProcessedRecords,
			j.FailedRecords,
			j.SkippedRecords,
			j.RetryCount,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatJobDetail(out io.Writer, j *model.ChangeListJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\t%s\n", j.ID)
	_, _ = fmt.Fprintf(w, "Type\t%s\n", j.ChangeType)
	_, _ = fmt.Fprintf(w, "File\t%s\n", j.FilePath)
	_, _ = fmt.Fprintf(w, "Status\t%s\n", j.Status)
	_, _ = fmt.Fprintf(w, "Progress\t%d%% (batch %d/%d)\n", j.ProgressPercent, j.CurrentBatch, j.TotalBatches)
	_, _ = fmt.Fprintf(w, "Records\t%d total, %d processed, %d failed, %d skipped\n",
		j.TotalRecords, j.ProcessedRecords, j.FailedRecords, j.SkippedRecords)
	_, _ = fmt.Fprintf(w, "Retries\t%d\n", j.RetryCount)
	if j.ProcessingDurationMs > 0 {
		_, _ = fmt.Fprintf(w, "Duration\t%dms\n", j.ProcessingDurationMs)
	}
	if j.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Error\t%s\n", j.ErrorMessage)
	}
	for _, e := range j.ErrorDetails {
		_, _ = fmt.Fprintf(w, "  \t%s\n", e)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
