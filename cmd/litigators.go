package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/fetcher"
	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/phone"
)

var litigatorsFile string

var litigatorsCmd = &cobra.Command{
	Use:   "litigators",
	Short: "Manage known-litigator reference data",
}

var litigatorsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert litigators from a CSV with phone, case_count and risk_level columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(litigatorsFile)
		if err != nil {
			return eris.Wrap(err, "open litigators file")
		}
		defer f.Close() //nolint:errcheck

		entries, rejected, err := parseLitigatorsCSV(ctx, f)
		if err != nil {
			return err
		}
		for _, r := range rejected {
			zap.L().Warn("skipped litigator row", zap.String("reason", r))
		}

		env, err := initEnv(ctx, "migrate")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Registry.UpsertLitigators(ctx, entries)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d litigators (%d rows skipped)\n", n, len(rejected))
		return nil
	},
}

// parseLitigatorsCSV reads litigator rows keyed by header name. Rows with an
// invalid phone, case count or risk level are returned as rejection reasons.
func parseLitigatorsCSV(ctx context.Context, r io.Reader) ([]model.LitigatorEntry, []string, error) {
	t, err := fetcher.ReadCSVTable(ctx, r)
	if err != nil {
		return nil, nil, eris.Wrap(err, "litigators: read csv")
	}

	cols := map[string]int{}
	for _, name := range []string{"phone", "case_count", "risk_level"} {
		if cols[name] = t.Column(name); cols[name] < 0 {
			return nil, nil, eris.Errorf("litigators: missing column %q", name)
		}
	}

	var (
		entries  []model.LitigatorEntry
		rejected []string
	)
	for i, row := range t.Rows {
		line := i + 2
		rawPhone := t.Cell(row, cols["phone"])
		rawCases := t.Cell(row, cols["case_count"])
		rawLevel := t.Cell(row, cols["risk_level"])

		key := phone.Normalize(rawPhone)
		if !phone.IsValid(key) {
			rejected = append(rejected, fmt.Sprintf("line %d: invalid phone %q", line, rawPhone))
			continue
		}
		cases, err := strconv.Atoi(rawCases)
		if err != nil || cases < 0 {
			rejected = append(rejected, fmt.Sprintf("line %d: invalid case_count %q", line, rawCases))
			continue
		}
		level := model.RiskLevel(strings.ToLower(rawLevel))
		switch level {
		case model.RiskLevelLow, model.RiskLevelMedium, model.RiskLevelHigh, model.RiskLevelCritical:
		default:
			rejected = append(rejected, fmt.Sprintf("line %d: invalid risk_level %q", line, rawLevel))
			continue
		}
		entries = append(entries, model.LitigatorEntry{Phone: key, CaseCount: cases, RiskLevel: level})
	}
	return entries, rejected, nil
}

func init() {
	litigatorsImportCmd.Flags().StringVar(&litigatorsFile, "file", "", "litigators CSV file")
	_ = litigatorsImportCmd.MarkFlagRequired("file")
	litigatorsCmd.AddCommand(litigatorsImportCmd)
	rootCmd.AddCommand(litigatorsCmd)
}
