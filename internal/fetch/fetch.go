// Package fetch retrieves remote media for the !dl command.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"wabot/internal/media"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	// ErrStatus is returned when the server answers with a non-2xx status.
	ErrStatus = errors.New("unexpected http status")
)

const userAgent = "wabot/1.0 (+https://github.com/wabot)"

// Renderer turns an HTML page into an image.
type Renderer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	Timeout  time.Duration
	MaxBytes int64    // default: 50MB
	Renderer Renderer // optional; when set, HTML responses are screenshotted
	Client   *http.Client // optional; gets the http/https redirect policy unless it has one
	Logger   *slog.Logger
}

// Result is a fetched payload.
type Result struct {
	Data     []byte
	MimeType string
	Rendered bool // Data is a screenshot of an HTML page
}

// Fetcher downloads a URL once, without retries.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	renderer Renderer
	logger   *slog.Logger
}

func New(cfg Config) *Fetcher {
	client := newClient(cfg.Timeout)
	if cfg.Client != nil {
		client = withRedirectPolicy(cfg.Client)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		renderer: cfg.Renderer,
		logger:   logger,
	}
}

// Fetch retrieves rawURL. The MIME type is sniffed from the bytes, not taken
// from the response headers.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse url: missing host in %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, u.Redacted())
	}

	data, err := media.ReadAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	mtype := mimetype.Detect(data)
	result := &Result{Data: data, MimeType: mtype.String()}

	if f.renderer != nil && mtype.Is("text/html") {
		shot, err := f.renderer.Capture(ctx, u.String())
		if err != nil {
			f.logger.Warn("page render failed, keeping raw body", "url", u.Redacted(), "err", err)
			return result, nil
		}
		return &Result{Data: shot, MimeType: "image/jpeg", Rendered: true}, nil
	}

	f.logger.Debug("fetched", "url", u.Redacted(), "size", len(data), "mime", result.MimeType)
	return result, nil
}
