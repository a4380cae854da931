package clip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"
)

// DefaultMaxBytes caps a single clip download.
const DefaultMaxBytes = 256 << 20

// Fetcher retrieves the encoded bytes of a clip.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]byte, error)
}

// ObjectStore reads objects for s3:// sources. storage.S3Storage satisfies it.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// SourceFetcher fetches clips over HTTP(S), from local disk or from S3.
// Requests are made once; failures are not retried.
type SourceFetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	objects    ObjectStore
	schemes    []string
	logger     *slog.Logger
}

// FetcherOption is a function that configures a SourceFetcher.
type FetcherOption func(*SourceFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *SourceFetcher) {
		f.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *SourceFetcher) {
		f.httpClient = &http.Client{Timeout: d}
	}
}

// WithUserAgent sets the User-Agent header sent with HTTP requests.
func WithUserAgent(ua string) FetcherOption {
	return func(f *SourceFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBytes limits the size of a single clip. Zero or less disables the limit.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *SourceFetcher) {
		f.maxBytes = n
	}
}

// WithObjectStore enables s3:// sources.
func WithObjectStore(s ObjectStore) FetcherOption {
	return func(f *SourceFetcher) {
		f.objects = s
	}
}

// WithAllowedSchemes restricts the URL schemes the fetcher accepts. Bare
// paths count as "file" and blobs as "inline". With no schemes every
// supported scheme is allowed.
func WithAllowedSchemes(schemes ...string) FetcherOption {
	return func(f *SourceFetcher) {
		f.schemes = schemes
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *SourceFetcher) {
		f.logger = l
	}
}

// NewFetcher creates a SourceFetcher.
func NewFetcher(opts ...FetcherOption) *SourceFetcher {
	f := &SourceFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "tableread/1.0",
		maxBytes:   DefaultMaxBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Allows reports whether the fetcher accepts the source's scheme.
func (f *SourceFetcher) Allows(src Source) bool {
	return len(f.schemes) == 0 || slices.Contains(f.schemes, src.Scheme())
}

// Fetch returns the encoded bytes of src.
func (f *SourceFetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !src.IsInline() && src.URL == "" {
		return nil, ErrEmptySource
	}
	if !f.Allows(src) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, src.Scheme())
	}

	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch scheme := src.Scheme(); scheme {
	case "inline":
		data = src.Data
	case "http", "https":
		data, err = f.fetchHTTP(ctx, src.URL)
	case "file":
		data, err = f.fetchFile(src.URL)
	case "s3":
		data, err = f.fetchObject(ctx, src.URL)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Debug("clip fetched",
		slog.String("source", src.String()),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}

func (f *SourceFetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return f.readAll(resp.Body)
}

func (f *SourceFetcher) fetchFile(rawURL string) ([]byte, error) {
	p := rawURL
	if strings.HasPrefix(rawURL, "file:") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse file URL: %w", err)
		}
		p = u.Path
	}

	fh, err := os.Open(p) // #nosec G304 - local sources are only allowed for trusted callers
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}
	defer func() { _ = fh.Close() }()

	return f.readAll(fh)
}

func (f *SourceFetcher) fetchObject(ctx context.Context, rawURL string) ([]byte, error) {
	if f.objects == nil {
		return nil, ErrObjectStoreNotConfigured
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse s3 URL: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 URL needs bucket and key: %s", ErrUnsupportedScheme, rawURL)
	}

	body, err := f.objects.Download(ctx, u.Host, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	return f.readAll(body)
}

func (f *SourceFetcher) readAll(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(r)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	if n > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return buf.Bytes(), nil
}

// Verify interface implementation at compile time.
var _ Fetcher = (*SourceFetcher)(nil)
