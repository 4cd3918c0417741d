// Package fetcher reads change-list files from a blob store (local
// directory, HTTP or FTP) and parses lead upload files (CSV, XLSX, JSON).
package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/config"
)

// Fetcher opens objects in a blob store by key.
type Fetcher interface {
	// Download returns the object body. The caller closes it.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open builds a Fetcher from configuration. The base URL scheme selects the
// backend: http(s), ftp, or a local directory for file:// and bare paths.
func Open(cfg config.FetcherConfig) (Fetcher, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return NewFileFetcher(""), nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse base url")
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{
			BaseURL:    base,
			APIKey:     cfg.APIKey,
			Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
			RatePerSec: cfg.RatePerSec,
		}), nil
	case "ftp":
		return NewFTPFetcher(FTPOptions{
			BaseURL: base,
			Timeout: time.Duration(cfg.FTPTimeoutSecs) * time.Second,
		})
	case "file":
		return NewFileFetcher(u.Path), nil
	case "":
		return NewFileFetcher(base), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}
