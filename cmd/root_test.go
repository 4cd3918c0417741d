package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/config"
	"github.com/sells-group/dnc-scrub/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// testConfig points every command at a fresh SQLite file and a local blob dir.
func testConfig(t *testing.T) (blobDir string) {
	t.Helper()
	dir := t.TempDir()
	blobDir = filepath.Join(dir, "blobs")
	require.NoError(t, os.MkdirAll(blobDir, 0o755))

	cfg = &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "dnc.db")},
		Server:  config.ServerConfig{Port: 8080},
		Check:   config.CheckConfig{ChunkSize: 2, ChunkConcurrency: 2},
		Ingest:  config.IngestConfig{BatchSize: 2, MaxAttempts: 1, TrackingTTLDays: 90, MaxErrorDetails: 10, Source: "ftc"},
		Fetcher: config.FetcherConfig{BaseURL: blobDir},
	}
	return blobDir
}

func runCmd(t *testing.T, cmd *cobra.Command) error {
	t.Helper()
	cmd.SetContext(context.Background())
	defer cmd.SetContext(nil) //nolint:staticcheck
	return cmd.RunE(cmd, nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"check", "ingest", "migrate", "serve", "list-files", "litigators"} {
		assert.True(t, names[want], want)
	}

	ingestNames := map[string]bool{}
	for _, c := range ingestCmd.Commands() {
		ingestNames[c.Name()] = true
	}
	for _, want := range []string{"create", "run", "status", "retry", "delete"} {
		assert.True(t, ingestNames[want], want)
	}
}

func TestCommandFlags(t *testing.T) {
	assert.NotNil(t, checkCmd.Flags().Lookup("input"))
	assert.NotNil(t, checkCmd.Flags().Lookup("output"))
	assert.NotNil(t, serveCmd.Flags().Lookup("port"))
	assert.NotNil(t, ingestRunCmd.Flags().Lookup("retry"))
	assert.NotNil(t, ingestCreateCmd.Flags().Lookup("area-codes"))
	assert.NotNil(t, ingestCreateCmd.Flags().Lookup("release-date"))
	assert.NotNil(t, listFilesCmd.Flags().Lookup("prefix"))
	assert.NotNil(t, litigatorsImportCmd.Flags().Lookup("file"))
}

func TestInitEnv_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	_, err := initEnv(context.Background(), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestInitEnv_ValidatesMode(t *testing.T) {
	testConfig(t)
	cfg.Check.ChunkSize = 0
	_, err := initEnv(context.Background(), "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check.chunk_size")
}

func TestCheckCmd_EndToEnd(t *testing.T) {
	testConfig(t)
	dir := t.TempDir()
	require.NoError(t, runCmd(t, migrateCmd))

	litigatorsFile = filepath.Join(dir, "litigators.csv")
	writeFile(t, litigatorsFile, "phone,case_count,risk_level\n8015550002,3,high\nnope,1,low\n")
	require.NoError(t, runCmd(t, litigatorsImportCmd))

	checkInput = filepath.Join(dir, "leads.csv")
	checkOutput = filepath.Join(dir, "out.json")
	defer func() { checkInput, checkOutput = "", "" }()
	writeFile(t, checkInput, "phone_number,name\n(801) 555-0001,Alice\n801-555-0002,Bob\n12,Bad\n")

	require.NoError(t, runCmd(t, checkCmd))

	data, err := os.ReadFile(checkOutput)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 3)

	byName := map[string]map[string]any{}
	for _, row := range out {
		byName[row["name"].(string)] = row
	}
	assert.Equal(t, "clean", byName["Alice"]["dnc_status"])
	assert.Contains(t, byName["Bob"]["risk_flags"], string(model.FlagKnownLitigator))
	assert.Contains(t, byName["Bad"]["risk_flags"], string(model.FlagInvalidPhone))
}

func TestCheckCmd_MissingInput(t *testing.T) {
	testConfig(t)
	checkInput = filepath.Join(t.TempDir(), "missing.csv")
	defer func() { checkInput = "" }()

	require.Error(t, runCmd(t, checkCmd))
}

func TestIngestCmds_Lifecycle(t *testing.T) {
	blobDir := testConfig(t)
	ctx := context.Background()
	require.NoError(t, runCmd(t, migrateCmd))
	writeFile(t, filepath.Join(blobDir, "adds-801.txt"), "8015550001\n8015550002\n8015550003\n")

	ingestFile, ingestType, ingestAreaCodes, ingestReleaseDate = "adds-801.txt", "additions", "801", "2026-10-01"
	require.NoError(t, runCmd(t, ingestCreateCmd))

	env, err := initEnv(ctx, "ingest")
	require.NoError(t, err)
	jobs, err := env.Jobs.ListJobs(ctx, model.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	id := jobs[0].ID
	require.NotNil(t, jobs[0].ReleaseDate)
	env.Close()

	ingestJobID, ingestType, ingestRetry = id, "", false
	require.NoError(t, runCmd(t, ingestRunCmd))

	env, err = initEnv(ctx, "ingest")
	require.NoError(t, err)
	job, err := env.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 3, job.ProcessedRecords)
	assert.Equal(t, 2, job.TotalBatches)
	env.Close()

	// Running a completed job without --retry is rejected.
	require.Error(t, runCmd(t, ingestRunCmd))

	ingestStatus, ingestLimit = "", 20
	require.NoError(t, runCmd(t, ingestStatusCmd))

	require.NoError(t, runCmd(t, ingestRetryCmd))
	env, err = initEnv(ctx, "ingest")
	require.NoError(t, err)
	job, err = env.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	env.Close()

	require.NoError(t, runCmd(t, ingestDeleteCmd))
	require.Error(t, runCmd(t, ingestStatusCmd), "deleted job is gone")
	ingestJobID = ""
}

func TestIngestCreateCmd_BadReleaseDate(t *testing.T) {
	testConfig(t)
	ingestFile, ingestType, ingestAreaCodes, ingestReleaseDate = "x.txt", "additions", "", "10/01/2026"
	defer func() { ingestReleaseDate = "" }()

	err := runCmd(t, ingestCreateCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release-date")
}

func TestListFilesCmd(t *testing.T) {
	blobDir := testConfig(t)
	writeFile(t, filepath.Join(blobDir, "adds.txt"), "8015550001\n")

	listFilesPrefix = "adds"
	defer func() { listFilesPrefix = "" }()
	require.NoError(t, runCmd(t, listFilesCmd))
}

func TestSplitAreaCodes(t *testing.T) {
	assert.Equal(t, []string{"801", "385"}, splitAreaCodes(" 801, ,385,"))
	assert.Nil(t, splitAreaCodes(""))
}
