// Package fetcher sends a single HTTP GET request for a uri and reads the whole response.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bool64/ctxd"
	"go.uber.org/atomic"
	"golang.org/x/net/http2"
)

const (
	// DefaultConnectTimeout is the default timeout for establishing a connection.
	DefaultConnectTimeout = 5 * time.Second

	// defaultUserAgent is the default user agent sent with every request.
	defaultUserAgent = `Mozilla/5.0 (compatible; webscraper/1.0)`

	// HTTP/2 connection health check. A connection without any frame for readIdleTimeout is pinged, and closed if the ping
	// is not answered within pingTimeout.
	readIdleTimeout = 30 * time.Second
	pingTimeout     = 15 * time.Second
)

// Fetcher fetches a uri.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (Response, error)
}

// Response is the result of a successful fetch.
type Response struct {
	// URI is the requested uri.
	URI string
	// FinalURI is the uri of the last request after following redirects.
	FinalURI   string
	StatusCode int
	Proto      string
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches uris over HTTP.
//
// The client prefers HTTP/2 and falls back to HTTP/1.1, follows redirects and bounds only the connection establishment.
// The response body is read into memory without any size limit.
type HTTPFetcher struct {
	client *http.Client
	log    ctxd.Logger
	closed *atomic.Bool

	transport      http.RoundTripper
	connectTimeout time.Duration
	tlsConfig      *tls.Config
	userAgent      string
}

// Fetch sends a GET request to the uri and reads the whole response body.
//
// Non-2xx status codes are not errors. The returned error is always a *FetchError, see Classify.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (Response, error) {
	ctx = ctxd.AddFields(ctx, "fetcher.uri", uri)

	if f.closed.Load() {
		return Response{}, &FetchError{URI: uri, Class: ClassCanceled, Err: ErrClosed}
	}

	u, err := parseURI(uri)
	if err != nil {
		f.log.Debug(ctx, "failed to parse uri", "error", err)

		return Response{}, &FetchError{URI: uri, Class: ClassInvalidURI, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		// This should not happen because the context is not nil and the uri is valid.
		f.log.Debug(ctx, "failed to create http request", "error", err)

		return Response{}, &FetchError{URI: uri, Class: ClassUnclassified, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)

	f.log.Debug(ctx, "send http request", "http.user_agent", f.userAgent)

	startTime := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug(ctx, "failed to send http request", "error", err)

		return Response{}, f.fetchError(ctx, uri, fmt.Errorf("failed to send http request: %w", err))
	}

	defer resp.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.log.Debug(ctx, "failed to read http response body", "error", err)

		return Response{}, f.fetchError(ctx, uri, fmt.Errorf("failed to read response body: %w", err))
	}

	result := Response{
		URI:        uri,
		FinalURI:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(startTime),
	}

	f.log.Info(ctx, "response received",
		"http.status_code", result.StatusCode,
		"http.final_uri", result.FinalURI,
		"http.proto", result.Proto,
		"http.body_size", len(result.Body),
		"http.duration", result.Duration.String(),
	)

	return result, nil
}

// fetchError classifies a request failure. The context decides whether it is a cancellation: a dial timeout also
// matches context.DeadlineExceeded but only affects the current uri.
func (f *HTTPFetcher) fetchError(ctx context.Context, uri string, err error) *FetchError {
	class := classify(err)

	if ctx.Err() != nil {
		class = ClassCanceled
	} else if class == ClassCanceled || class == ClassUnclassified {
		class = ClassTransient
	}

	return &FetchError{URI: uri, Class: class, Err: err}
}

// Close releases the idle connections of the client. Fetches after Close fail with ErrClosed.
func (f *HTTPFetcher) Close() {
	if f.closed.Swap(true) {
		return
	}

	f.client.CloseIdleConnections()
}

// Closed reports whether the fetcher has been closed.
func (f *HTTPFetcher) Closed() bool {
	return f.closed.Load()
}

// ConnectTimeout returns the timeout for establishing a connection.
func (f *HTTPFetcher) ConnectTimeout() time.Duration {
	return f.connectTimeout
}

func (f *HTTPFetcher) newTransport() *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   f.connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   f.connectTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       f.tlsConfig,
	}

	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		// The transport is brand new, so h2 cannot be registered already. Without h2 it still speaks HTTP/1.1.
		f.log.Warn(context.Background(), "could not configure http2 transport", "error", err)

		return t
	}

	h2.ReadIdleTimeout = readIdleTimeout
	h2.PingTimeout = pingTimeout

	return t
}

// New creates a new HTTPFetcher.
//
//	f := fetcher.New(fetcher.WithConnectTimeout(time.Second))
//	defer f.Close()
//
//	resp, err := f.Fetch(ctx, "https://example.org")
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		log:    ctxd.NoOpLogger{},
		closed: atomic.NewBool(false),

		connectTimeout: DefaultConnectTimeout,
		userAgent:      defaultUserAgent,
	}

	for _, opt := range opts {
		opt.applyFetcherOption(f)
	}

	if f.connectTimeout <= 0 {
		f.connectTimeout = DefaultConnectTimeout
	}

	if f.transport == nil {
		f.transport = f.newTransport()
	}

	// The default redirect policy follows up to 10 redirects. There is no overall timeout, only the connection
	// establishment is bounded.
	f.client = &http.Client{Transport: f.transport}

	return f
}

// Option is option to set up HTTPFetcher.
type Option interface {
	applyFetcherOption(f *HTTPFetcher)
}

type optionFunc func(f *HTTPFetcher)

func (fn optionFunc) applyFetcherOption(f *HTTPFetcher) {
	fn(f)
}

// WithLogger sets logger for HTTPFetcher.
func WithLogger(l ctxd.Logger) Option {
	return optionFunc(func(f *HTTPFetcher) {
		f.log = l
	})
}

// WithConnectTimeout sets the timeout for establishing a connection.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(f *HTTPFetcher) {
		f.connectTimeout = d
	})
}

// WithUserAgent sets the user agent of the requests.
func WithUserAgent(ua string) Option {
	return optionFunc(func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	})
}

// WithTLSClientConfig sets the TLS configuration of the default transport.
func WithTLSClientConfig(cfg *tls.Config) Option {
	return optionFunc(func(f *HTTPFetcher) {
		f.tlsConfig = cfg
	})
}

// WithTransport replaces the default transport. The connect timeout and the TLS configuration are not applied to it.
func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(f *HTTPFetcher) {
		f.transport = rt
	})
}

// parseURI parses the uri for sending a request. The uri is not normalized, it must be absolute with an http or https
// scheme and a hostname.
func parseURI(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: parse %q: %w %q", ErrInvalidURI, s, ErrUnsupportedScheme, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: parse %q: %w", ErrInvalidURI, s, ErrMissingHostname)
	}

	return u, nil
}
