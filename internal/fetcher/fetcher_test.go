package fetcher_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bool64/ctxd"
	"github.com/nhatthm/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhatthm/webscraper/internal/fetcher"
	"github.com/nhatthm/webscraper/internal/logger"
)

const samplePath = "/path"

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet(samplePath).
			WithHeader("User-Agent", "test-agent").
			ReturnHeader("Content-Type", "text/plain").
			ReturnCode(httpmock.StatusOK).
			Return("hello world")
	})(t)

	f := fetcher.New(
		fetcher.WithUserAgent("test-agent"),
		fetcher.WithLogger(ctxd.NoOpLogger{}),
	)
	defer f.Close()

	uri := srv.URL() + samplePath

	resp, err := f.Fetch(context.Background(), uri)
	require.NoError(t, err)

	assert.Equal(t, uri, resp.URI)
	assert.Equal(t, uri, resp.FinalURI)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HTTP/1.1", resp.Proto)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("hello world"), resp.Body)
	assert.Positive(t, resp.Duration)
}

func TestHTTPFetcher_Fetch_StatusCodeIsNotAnError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		scenario   string
		statusCode int
	}{
		{
			scenario:   "not found",
			statusCode: http.StatusNotFound,
		},
		{
			scenario:   "forbidden",
			statusCode: http.StatusForbidden,
		},
		{
			scenario:   "internal server error",
			statusCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			srv := httpmock.New(func(s *httpmock.Server) {
				s.ExpectGet(samplePath).
					ReturnCode(tc.statusCode)
			})(t)

			f := fetcher.New()
			defer f.Close()

			resp, err := f.Fetch(context.Background(), srv.URL()+samplePath)

			assert.NoError(t, err)
			assert.Equal(t, tc.statusCode, resp.StatusCode)
		})
	}
}

func TestHTTPFetcher_Fetch_FollowRedirect(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/old").
			ReturnHeader("Location", "/new").
			ReturnCode(http.StatusMovedPermanently)

		s.ExpectGet("/new").
			ReturnCode(httpmock.StatusOK).
			Return("moved here")
	})(t)

	f := fetcher.New()
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL()+"/old")
	require.NoError(t, err)

	assert.Equal(t, srv.URL()+"/old", resp.URI)
	assert.Equal(t, srv.URL()+"/new", resp.FinalURI)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("moved here"), resp.Body)
}

func TestHTTPFetcher_Fetch_PreferHTTP2(t *testing.T) {
	t.Parallel()

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, r.Proto) // nolint: errcheck
	}))
	srv.EnableHTTP2 = true

	srv.StartTLS()
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	f := fetcher.New(fetcher.WithTLSClientConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}))
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "HTTP/2.0", resp.Proto)
	assert.Equal(t, []byte("HTTP/2.0"), resp.Body)
}

func TestHTTPFetcher_Fetch_InvalidURI(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		scenario string
		uri      string
		expected string
	}{
		{
			scenario: "could not parse uri",
			uri:      "\x1B",
			expected: "invalid uri: parse \"\\x1b\": net/url: invalid control character in URL",
		},
		{
			scenario: "missing scheme",
			uri:      "example.org",
			expected: `invalid uri: parse "example.org": unsupported scheme ""`,
		},
		{
			scenario: "missing hostname",
			uri:      "https:///relative/path",
			expected: `invalid uri: parse "https:///relative/path": missing hostname`,
		},
		{
			scenario: "unsupported scheme",
			uri:      "ftp://file.txt",
			expected: `invalid uri: parse "ftp://file.txt": unsupported scheme "ftp"`,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			f := fetcher.New()
			defer f.Close()

			_, err := f.Fetch(context.Background(), tc.uri)

			assert.EqualError(t, err, tc.expected)
			assert.ErrorIs(t, err, fetcher.ErrInvalidURI)
			assert.Equal(t, fetcher.ClassInvalidURI, fetcher.Classify(err))
		})
	}
}

func TestHTTPFetcher_Fetch_ConnectionRefused(t *testing.T) {
	t.Parallel()

	uri := unreachableURI(t)

	f := fetcher.New(fetcher.WithConnectTimeout(time.Second))
	defer f.Close()

	_, err := f.Fetch(context.Background(), uri)
	require.Error(t, err)

	var fErr *fetcher.FetchError

	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, uri, fErr.URI)
	assert.Equal(t, fetcher.ClassTransient, fetcher.Classify(err))
	assert.Contains(t, err.Error(), "failed to send http request")
}

func TestHTTPFetcher_Fetch_FailuresAreLoggedAtDebugLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		scenario    string
		uri         func(t *testing.T) string
		expectedLog string
	}{
		{
			scenario:    "invalid uri",
			uri:         func(*testing.T) string { return "ftp://file.txt" },
			expectedLog: "failed to parse uri",
		},
		{
			scenario:    "connection refused",
			uri:         unreachableURI,
			expectedLog: "failed to send http request",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			levelCases := []struct {
				level    logger.Level
				expected bool
			}{
				{level: logger.ErrorLevel},
				{level: logger.DebugLevel, expected: true},
			}

			for _, lc := range levelCases {
				buf := new(bytes.Buffer)

				l, _ := logger.NewLogger(logger.Config{
					Output:    buf,
					Level:     lc.level,
					StripTime: true,
				})

				f := fetcher.New(
					fetcher.WithLogger(l),
					fetcher.WithConnectTimeout(time.Second),
				)

				_, err := f.Fetch(context.Background(), tc.uri(t))

				f.Close()

				require.Error(t, err)

				if lc.expected {
					assert.Contains(t, buf.String(), "DEBUG")
					assert.Contains(t, buf.String(), tc.expectedLog)
				} else {
					assert.Empty(t, buf.String())
				}
			}
		})
	}
}

func TestHTTPFetcher_Fetch_BrokenBody(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet(samplePath).
			ReturnHeader("Content-Encoding", "gzip").
			Run(func(*http.Request) ([]byte, error) {
				buf := new(bytes.Buffer)
				gz := gzip.NewWriter(buf)

				defer gz.Close() // nolint: errcheck

				if _, err := gz.Write(bytes.Repeat([]byte("hello world "), 100)); err != nil {
					return nil, fmt.Errorf("could not compress: %w", err)
				}

				// Client will get unexpected EOF because gzip writer is not flushed at this point.
				return buf.Bytes(), nil
			})
	})(t)

	f := fetcher.New()
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL()+samplePath)

	assert.EqualError(t, err, "failed to read response body: unexpected EOF")
	assert.Equal(t, fetcher.ClassTransient, fetcher.Classify(err))
}

func TestHTTPFetcher_Fetch_Canceled(t *testing.T) {
	t.Parallel()

	f := fetcher.New()
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, unreachableURI(t))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, fetcher.ClassCanceled, fetcher.Classify(err))
}

func TestHTTPFetcher_Close(t *testing.T) {
	t.Parallel()

	f := fetcher.New()

	assert.False(t, f.Closed())

	f.Close()
	f.Close()

	assert.True(t, f.Closed())

	_, err := f.Fetch(context.Background(), "https://example.org")

	assert.ErrorIs(t, err, fetcher.ErrClosed)
	assert.Equal(t, fetcher.ClassCanceled, fetcher.Classify(err))
}

func TestNew_ConnectTimeout(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		scenario string
		timeout  time.Duration
		expected time.Duration
	}{
		{
			scenario: "default",
			expected: fetcher.DefaultConnectTimeout,
		},
		{
			scenario: "negative",
			timeout:  -time.Second,
			expected: fetcher.DefaultConnectTimeout,
		},
		{
			scenario: "custom",
			timeout:  time.Second,
			expected: time.Second,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			f := fetcher.New(fetcher.WithConnectTimeout(tc.timeout))
			defer f.Close()

			assert.Equal(t, tc.expected, f.ConnectTimeout())
		})
	}
}

// unreachableURI returns a uri on a local port that nothing listens to.
func unreachableURI(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()

	require.NoError(t, l.Close())

	return "http://" + addr + samplePath
}
