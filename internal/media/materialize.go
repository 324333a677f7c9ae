package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CacheFileName is the fixed destination inside the cache directory.
	// Each materialization overwrites the previous one.
	CacheFileName = "uploaded_video.mp4"

	copyBufferSize = 4096
)

// Result describes a materialized file.
type Result struct {
	Path string
	Size int64
}

// Materializer copies the bytes behind a content reference into a plain
// local file that the upload client can stream.
type Materializer struct {
	cacheDir   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMaterializer creates a Materializer writing into cacheDir.
// httpClient is used for http(s) references; nil means http.DefaultClient.
func NewMaterializer(cacheDir string, httpClient *http.Client) *Materializer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Materializer{
		cacheDir:   cacheDir,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// Destination returns the path Materialize writes to.
func (m *Materializer) Destination() string {
	return filepath.Join(m.cacheDir, CacheFileName)
}

// Materialize copies ref into the cache destination. ref may be a plain
// filesystem path, a file:// URI, or an http(s) URL, including the
// destination itself. The copy goes to a temporary file that replaces the
// destination only once complete. Any failure is an *IOError and leaves no
// partial destination file behind.
func (m *Materializer) Materialize(ctx context.Context, ref string) (Result, error) {
	src, err := m.open(ctx, ref)
	if err != nil {
		return Result{}, &IOError{Op: "open", Ref: ref, Err: err}
	}
	defer src.Close()

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return Result{}, &IOError{Op: "create", Ref: ref, Err: err}
	}

	out, err := os.CreateTemp(m.cacheDir, "uploaded_video-*.mp4")
	if err != nil {
		return Result{}, &IOError{Op: "create", Ref: ref, Err: err}
	}
	tmp := out.Name()

	n, op, err := copyBuffered(ctx, out, src)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		op, err = "write", closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return Result{}, &IOError{Op: op, Ref: ref, Err: err}
	}

	dst := m.Destination()
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return Result{}, &IOError{Op: "write", Ref: ref, Err: err}
	}

	m.logger.Debug("materialized video", "ref", ref, "path", dst, "bytes", n)
	return Result{Path: dst, Size: n}, nil
}

// copyBuffered is a read/write loop over a fixed-size buffer. It reports
// which side failed so callers can tell read errors from write errors.
func copyBuffered(ctx context.Context, dst io.Writer, src io.Reader) (int64, string, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, "read", err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, "write", werr
			}
			if nw != nr {
				return total, "write", io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return total, "", nil
		}
		if rerr != nil {
			return total, "read", rerr
		}
	}
}

func (m *Materializer) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty content reference")
	}

	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return m.fetch(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		path, err := filePathFromURI(ref)
		if err != nil {
			return nil, err
		}
		return openRegular(path)
	default:
		return openRegular(ref)
	}
}

func (m *Materializer) fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", ref, resp.StatusCode)
	}
	return resp.Body, nil
}

func filePathFromURI(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing file uri: %w", err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file uri with remote host %q", u.Host)
	}
	if u.Path == "" {
		return "", errors.New("file uri without path")
	}
	return filepath.FromSlash(u.Path), nil
}

func openRegular(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return os.Open(path)
}
