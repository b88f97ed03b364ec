// Package fetch retrieves mirror-list pages and marker resources over HTTP(S)
// and FTP. Every failure collapses to an absent result so callers can treat
// "could not verify" uniformly.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/safety"
	"github.com/morikuni/failure/v2"
	"github.com/motemen/go-loghttp"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// ErrorCode identifies fetch failure kinds.
type ErrorCode string

const (
	// ErrFetchUnavailable covers transport failures, non-success statuses and
	// oversized bodies. It never escapes Fetch.
	ErrFetchUnavailable ErrorCode = "FetchUnavailable"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 16 * 1024 * 1024
	defaultUserAgent    = "mirrorlist/1.0"
)

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	RateLimit    float64 // requests per second across all fetches, 0 = unlimited
	Burst        int
	TempDir      string // FTP spool directory, empty = os.TempDir()
	Debug        bool   // log every HTTP request and response
}

// Client is the content fetcher shared by the site parsers and the assembler.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	dialFTP    ftpDialer
	timeout    time.Duration
	userAgent  string
	maxBytes   int64
	tempDir    string
	logger     *slog.Logger
}

// New creates a Client from opts.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	httpClient := safety.NewHTTPClient(opts.Timeout)
	if opts.Debug {
		httpClient.Transport = &loghttp.Transport{
			Transport: httpClient.Transport,
			LogRequest: func(req *http.Request) {
				logger.Debug("HTTP request", "method", req.Method, "url", req.URL.String())
			},
			LogResponse: func(resp *http.Response) {
				logger.Debug("HTTP response",
					"method", resp.Request.Method,
					"url", resp.Request.URL.String(),
					"status_code", resp.StatusCode,
				)
			},
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		dialFTP:    dialServerConn,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxBodyBytes,
		tempDir:    opts.TempDir,
		logger:     logger,
	}
}

// Fetch returns the content at rawURL and true, or nil and false when the URL
// has a non-network scheme or could not be retrieved. Unsupported URLs are
// rejected before any network I/O.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, bool) {
	u, err := safety.ValidateFetchURL(rawURL)
	if err != nil {
		c.logger.Debug("skipping unfetchable URL", "url", rawURL, "error", err)
		return nil, false
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Debug("rate limiter wait aborted", "url", u.Redacted(), "error", err)
			return nil, false
		}
	}

	var data []byte
	switch u.Scheme {
	case "ftp":
		data, err = c.retrieveFTP(ctx, u)
	default:
		data, err = c.get(ctx, u)
	}
	if err == nil {
		data, err = decompress(data, c.maxBytes)
	}
	if err != nil {
		c.logger.Debug("fetch failed", "url", u.Redacted(), "error", err)
		return nil, false
	}
	return data, true
}

// get performs an HTTP GET and returns the decoded response body.
func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, failure.Translate(err, ErrFetchUnavailable)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Translate(err, ErrFetchUnavailable)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, failure.New(ErrFetchUnavailable,
			failure.Message("unexpected HTTP status"),
			failure.Context{
				"url":    u.Redacted(),
				"status": resp.Status,
			},
		)
	}

	body, err := safety.ReadAllWithLimit(decodeBody(resp.Body, resp.Header.Get("Content-Type")), c.maxBytes)
	if err != nil {
		return nil, failure.Translate(err, ErrFetchUnavailable,
			failure.Context{"url": u.Redacted()})
	}
	return body, nil
}

// decodeBody converts the body to UTF-8 when the response declares a charset
// or is HTML. Other bodies are passed through untouched.
func decodeBody(body io.Reader, contentType string) io.Reader {
	if contentType == "" {
		return body
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	if _, ok := params["charset"]; !ok && mediaType != "text/html" {
		return body
	}
	r, err := charset.NewReader(body, contentType)
	if err != nil {
		return body
	}
	return r
}

// hostPort returns the dial address for an FTP URL.
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "21")
}
