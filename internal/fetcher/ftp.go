package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	// BaseURL is ftp://[user:pass@]host[:port]/dir. Credentials default to anonymous.
	BaseURL string
	Timeout time.Duration
}

// FTPFetcher reads change-list files from an FTP drop directory.
type FTPFetcher struct {
	opts     FTPOptions
	host     string
	dir      string
	user     string
	password string
}

// NewFTPFetcher parses the base URL and creates an FTPFetcher.
func NewFTPFetcher(opts FTPOptions) (*FTPFetcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	host, dir, err := parseFTPURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	f := &FTPFetcher{opts: opts, host: host, dir: dir, user: "anonymous", password: "anonymous@"}

	u, _ := url.Parse(opts.BaseURL)
	if u.User != nil {
		f.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			f.password = pw
		}
	}
	return f, nil
}

// parseFTPURL extracts host (with port) and directory from an FTP URL.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.New("empty host in ftp url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

// ftpConnReader closes the FTP response and disconnects when closed.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

func (f *FTPFetcher) connect(ctx context.Context) (*ftp.ServerConn, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", f.host), zap.String("dir", f.dir))

	conn, err := ftp.Dial(f.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login(f.user, f.password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

// Download retrieves a file under the base directory. The caller must close
// the returned ReadCloser to release the FTP connection.
func (f *FTPFetcher) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(path.Join(f.dir, key))
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrapf(err, "ftp retrieve %s", key)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// List returns file names in the base directory that start with prefix.
func (f *FTPFetcher) List(ctx context.Context, prefix string) ([]string, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	names, err := conn.NameList(f.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp list %s", f.dir)
	}

	var keys []string
	for _, n := range names {
		n = path.Base(n)
		if strings.HasPrefix(n, prefix) {
			keys = append(keys, n)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
