// Package fetch retrieves remote documents over a pool of independent network
// paths, failing over to the next path on transient network errors.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultAccept    = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5"
	defaultMaxBody   = 10 << 20
)

// Doer is the part of *http.Client a path needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Path is one way out to the network.
type Path struct {
	Name   string
	Client Doer
}

type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	DNSCacheTTL  time.Duration
	VerifyTLS    bool
	UserAgent    string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.DNSCacheTTL <= 0 || o.DNSCacheTTL > time.Minute {
		o.DNSCacheTTL = time.Minute
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBody
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Result struct {
	Body        []byte
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Path        string
}

// Error describes a failed attempt on one path.
type Error struct {
	URL        string
	Path       string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s via %s: status %d", e.URL, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s via %s: %v", e.URL, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err came from a network failure worth retrying on another path.
func IsTransient(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return isTransientNetErr(err)
}

type Fetcher struct {
	paths      []Path
	maxRetries int
	userAgent  string
	maxBody    int64
	log        *slog.Logger
	closers    []func()
}

// New builds a fetcher over the default public resolver pool.
func New(opts Options) *Fetcher {
	opts = opts.withDefaults()
	paths := make([]Path, 0, len(DefaultResolvers))
	var closers []func()
	for _, spec := range DefaultResolvers {
		p, closer := newResolverPath(spec, opts)
		paths = append(paths, p)
		closers = append(closers, closer)
	}
	f := NewWithPaths(paths, opts)
	f.closers = closers
	return f
}

func NewWithPaths(paths []Path, opts Options) *Fetcher {
	opts = opts.withDefaults()
	return &Fetcher{
		paths:      paths,
		maxRetries: opts.MaxRetries,
		userAgent:  opts.UserAgent,
		maxBody:    opts.MaxBodyBytes,
		log:        opts.Logger.With("component", "fetch"),
	}
}

func (f *Fetcher) PathNames() []string {
	names := make([]string, len(f.paths))
	for i, p := range f.paths {
		names[i] = p.Name
	}
	return names
}

// Close releases idle connections and lookup caches.
func (f *Fetcher) Close() {
	for _, c := range f.closers {
		c()
	}
}

// Fetch GETs url, trying at most min(maxRetries, len(paths)) paths. Only
// transient network errors move on to the next path; anything else is final.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	attempts := min(f.maxRetries, len(f.paths))
	if attempts == 0 {
		return nil, &Error{URL: url, Err: errors.New("no network paths configured")}
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		p := f.paths[i]
		res, err := f.fetchOnce(ctx, p, url)
		if err == nil {
			if i > 0 {
				f.log.Info("fetched after failover", "url", url, "path", p.Name, "attempt", i+1)
			}
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if !IsTransient(err) {
			f.log.Debug("fetch aborted", "url", url, "path", p.Name, "error", err)
			return nil, err
		}
		f.log.Warn("transient fetch failure, trying next path", "url", url, "path", p.Name, "error", err)
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, p Path, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Path: p.Name, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Path: p.Name, Transient: isTransientNetErr(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &Error{URL: url, Path: p.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		// A stall or reset mid-body is the path's fault, not the origin's.
		return nil, &Error{URL: url, Path: p.Name, Transient: isTransientNetErr(err), Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBody {
		return nil, &Error{URL: url, Path: p.Name, Err: fmt.Errorf("body exceeds %d bytes", f.maxBody)}
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	return &Result{
		Body:        body,
		URL:         final,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Path:        p.Name,
	}, nil
}

// isTransientNetErr covers name-resolution failures, resets and timeouts.
func isTransientNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
