// Package http serves container bytes from a remote URL, so a pnp container
// published on a web server can be registered without downloading it.
//
// Every read is a single range request. The prefix, manifest and each opened
// entry are fetched separately; nothing else is transferred.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
)

var (
	// ErrRangeUnsupported is returned when the server answers a range
	// request with the full body.
	ErrRangeUnsupported = errors.New("pnp: range requests not supported")

	// ErrChanged is returned when the remote container no longer matches the
	// version observed by NewSource.
	ErrChanged = errors.New("pnp: remote container changed")
)

type config struct {
	client *nethttp.Client
	header nethttp.Header
	logger *slog.Logger
}

// Option configures a Source.
type Option func(*config)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithHeader adds a header, such as Authorization, to every request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.header.Set(key, value)
	}
}

// WithLogger sets the logger for per-request debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Source is an io.ReaderAt over a remote container.
//
// The ETag seen by NewSource is sent as If-Match on every read, so a
// container replaced on the server fails with ErrChanged instead of yielding
// segments from two different builds.
type Source struct {
	ctx  context.Context
	url  string
	cfg  config
	size int64
	etag string
}

// NewSource checks that url honours range requests and records its size and
// version.
//
// ctx bounds the check and every later ReadAt: the Source keeps it because
// io.ReaderAt has no context parameter. Cancelling ctx therefore fails every
// subsequent read of a container registered over this Source, so pass a
// context that lives as long as the registration.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	cfg := config{header: make(nethttp.Header)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = nethttp.DefaultClient
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	s := &Source{ctx: ctx, url: url, cfg: cfg}
	if err := s.probe(); err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	cfg.logger.Debug("remote container", "url", url, "size", s.size, "etag", s.etag)
	return s, nil
}

// Size returns the length of the remote container in bytes.
func (s *Source) Size() int64 { return s.size }

// ReadAt fetches len(p) bytes at off. A read that runs past the end returns
// the bytes that exist and io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	switch {
	case off < 0:
		return 0, fmt.Errorf("read %s at %d: negative offset", s.url, off)
	case len(p) == 0:
		return 0, nil
	case off >= s.size:
		return 0, io.EOF
	}

	n := min(int64(len(p)), s.size-off)
	resp, err := s.fetch(off, off+n-1)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusPreconditionFailed:
		return 0, fmt.Errorf("read %s: %w", s.url, ErrChanged)
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("read %s: %s", s.url, resp.Status)
	}

	s.cfg.logger.Debug("range read", "url", s.url, "offset", off, "length", n)
	got, err := io.ReadFull(resp.Body, p[:n])
	if err != nil {
		return got, fmt.Errorf("read %s at %d: %w", s.url, off, err)
	}
	if n < int64(len(p)) {
		return got, io.EOF
	}
	return got, nil
}

// probe requests the first byte and takes the total size from
// Content-Range. Servers answer an empty body with either 416 or a plain
// 200 of length zero.
func (s *Source) probe() error {
	resp, err := s.fetch(0, 0)
	if err != nil {
		return err
	}
	defer drain(resp)

	s.etag = resp.Header.Get("ETag")
	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		s.size = 0
		return nil
	case nethttp.StatusOK:
		if resp.ContentLength == 0 {
			s.size = 0
			return nil
		}
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("probe: %s", resp.Status)
	}

	size, err := totalSize(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	return nil
}

// fetch issues GET with Range bytes=first-last. If-Match is set once the
// ETag is known.
func (s *Source) fetch(first, last int64) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, nethttp.MethodGet, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.cfg.header {
		req.Header[key] = append(req.Header[key], values...)
	}
	// Segments are addressed in stored bytes; a transparently decoded body
	// would shift every offset.
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Range", "bytes="+strconv.FormatInt(first, 10)+"-"+strconv.FormatInt(last, 10))
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	}
	return s.cfg.client.Do(req)
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // connection reuse only
	_ = resp.Body.Close()
}

// totalSize parses the complete length from a Content-Range value of the
// form "bytes first-last/total".
func totalSize(value string) (int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if ok {
		if _, total, found := strings.Cut(spec, "/"); found {
			if size, err := strconv.ParseInt(total, 10, 64); err == nil && size >= 0 {
				return size, nil
			}
		}
	}
	return 0, fmt.Errorf("probe: bad Content-Range %q", value)
}
