package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dnc-scrub/internal/ingest"
	"github.com/sells-group/dnc-scrub/internal/model"
)

var (
	ingestJobID       string
	ingestType        string
	ingestRetry       bool
	ingestFile        string
	ingestAreaCodes   string
	ingestReleaseDate string
	ingestStatus      string
	ingestLimit       int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Manage FTC change-list ingestion jobs",
}

var ingestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a pending change-list job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		job := model.ChangeListJob{
			ChangeType: model.ChangeType(ingestType),
			FilePath:   ingestFile,
			AreaCodes:  splitAreaCodes(ingestAreaCodes),
		}
		if ingestReleaseDate != "" {
			d, err := time.Parse(time.DateOnly, ingestReleaseDate)
			if err != nil {
				return eris.Wrap(err, "parse --release-date")
			}
			job.ReleaseDate = &d
		}

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl, err := newController(env)
		if err != nil {
			return err
		}
		created, err := ctrl.Create(ctx, job)
		if err != nil {
			return err
		}
		fmt.Println(created.ID)
		return nil
	},
}

var ingestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a change-list job to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl, err := newController(env)
		if err != nil {
			return err
		}

		req := ingest.Request{JobID: ingestJobID, IsRetry: ingestRetry}
		if ingestType != "" {
			ct, err := model.ParseChangeType(ingestType)
			if err != nil {
				return err
			}
			req.ChangeType = ct
		}

		job, err := ctrl.Run(ctx, req)
		if job != nil {
			formatJobDetail(os.Stdout, job)
		}
		return err
	},
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show one job or list recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl, err := newController(env)
		if err != nil {
			return err
		}

		if ingestJobID != "" {
			job, err := ctrl.Get(ctx, ingestJobID)
			if err != nil {
				return err
			}
			formatJobDetail(os.Stdout, job)
			return nil
		}

		jobs, err := ctrl.List(ctx, model.JobFilter{
			Status: model.JobStatus(ingestStatus),
			Limit:  ingestLimit,
		})
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

var ingestRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset a completed or failed job to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl, err := newController(env)
		if err != nil {
			return err
		}
		job, err := ctrl.Retry(ctx, ingestJobID)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s reset to %s (retry %d)\n", job.ID, job.Status, job.RetryCount)
		return nil
	},
}

var ingestDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a job that is not processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		ctrl, err := newController(env)
		if err != nil {
			return err
		}
		if err := ctrl.Delete(ctx, ingestJobID); err != nil {
			return err
		}
		fmt.Printf("Deleted job %s\n", ingestJobID)
		return nil
	},
}

// splitAreaCodes parses a comma-separated flag value, dropping blanks.
func splitAreaCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	ingestCreateCmd.Flags().StringVar(&ingestFile, "file", "", "change-list file key in the blob store")
	ingestCreateCmd.Flags().StringVar(&ingestType, "type", "", "change type: additions or deletions")
	ingestCreateCmd.Flags().StringVar(&ingestAreaCodes, "area-codes", "", "comma-separated area codes to restrict the job to")
	ingestCreateCmd.Flags().StringVar(&ingestReleaseDate, "release-date", "", "FTC release date (YYYY-MM-DD)")
	_ = ingestCreateCmd.MarkFlagRequired("file")
	_ = ingestCreateCmd.MarkFlagRequired("type")

	ingestRunCmd.Flags().StringVar(&ingestJobID, "job", "", "job id")
	ingestRunCmd.Flags().StringVar(&ingestType, "type", "", "expected change type (optional)")
	ingestRunCmd.Flags().BoolVar(&ingestRetry, "retry", false, "reset a completed or failed job before running it")
	_ = ingestRunCmd.MarkFlagRequired("job")

	ingestStatusCmd.Flags().StringVar(&ingestJobID, "job", "", "show a single job")
	ingestStatusCmd.Flags().StringVar(&ingestStatus, "status", "", "filter by status")
	ingestStatusCmd.Flags().IntVar(&ingestLimit, "limit", 20, "maximum jobs to list")

	ingestRetryCmd.Flags().StringVar(&ingestJobID, "job", "", "job id")
	_ = ingestRetryCmd.MarkFlagRequired("job")

	ingestDeleteCmd.Flags().StringVar(&ingestJobID, "job", "", "job id")
	_ = ingestDeleteCmd.MarkFlagRequired("job")

	ingestCmd.AddCommand(ingestCreateCmd, ingestRunCmd, ingestStatusCmd, ingestRetryCmd, ingestDeleteCmd)
	rootCmd.AddCommand(ingestCmd)
}
