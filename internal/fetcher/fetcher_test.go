package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpen_Backends(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    any
		wantErr bool
	}{
		{name: "empty", base: "", want: &FileFetcher{}},
		{name: "bare path", base: "/var/dnc", want: &FileFetcher{}},
		{name: "file scheme", base: "file:///var/dnc", want: &FileFetcher{}},
		{name: "http", base: "http://blob.local/dnc", want: &HTTPFetcher{}},
		{name: "https", base: "https://blob.local/dnc", want: &HTTPFetcher{}},
		{name: "ftp", base: "ftp://ftp.example.com/changes", want: &FTPFetcher{}},
		{name: "unsupported", base: "s3://bucket/dnc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Open(config.FetcherConfig{BaseURL: tt.base, TimeoutSecs: 5, RatePerSec: 5})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestOpen_FileSchemeRoot(t *testing.T) {
	f, err := Open(config.FetcherConfig{BaseURL: "file:///srv/dnc"})
	require.NoError(t, err)
	assert.Equal(t, "/srv/dnc", f.(*FileFetcher).root)
}
