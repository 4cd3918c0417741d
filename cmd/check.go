package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/fetcher"
)

var (
	checkInput  string
	checkOutput string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Score a lead file against the DNC registry",
	Long:  "Reads a CSV, XLSX or JSON lead file, scores every phone number and prints a summary. With --output the enriched leads are written as CSV or JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leads, err := fetcher.ReadLeads(ctx, checkInput)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		checker, err := newChecker(env)
		if err != nil {
			return err
		}

		processed, err := checker.CheckChunked(ctx, leads, cfg.Check.ChunkSize, cfg.Check.ChunkConcurrency)
		if err != nil {
			return eris.Wrap(err, "check")
		}
		stats := check.Summarize(processed)
		formatStats(os.Stdout, stats)

		if checkOutput == "" {
			return nil
		}
		out, err := os.Create(checkOutput)
		if err != nil {
			return eris.Wrap(err, "create output")
		}
		defer out.Close() //nolint:errcheck

		switch strings.ToLower(filepath.Ext(checkOutput)) {
		case ".json":
			err = writeProcessedJSON(out, processed)
		default:
			err = writeProcessedCSV(out, processed)
		}
		if err != nil {
			return err
		}

		zap.L().Info("wrote enriched leads", zap.String("path", checkOutput), zap.Int("leads", len(processed)))
		fmt.Fprintf(os.Stderr, "Wrote %d leads to %s\n", len(processed), checkOutput)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkInput, "input", "", "lead file (.csv, .xlsx, .json)")
	checkCmd.Flags().StringVar(&checkOutput, "output", "", "write enriched leads to this .csv or .json file")
	_ = checkCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(checkCmd)
}
