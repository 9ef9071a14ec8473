package scraper

import (
	"time"

	"github.com/bool64/ctxd"

	"github.com/nhatthm/webscraper/internal/fetcher"
	"github.com/nhatthm/webscraper/internal/metrics"
)

// Option is option to set up Scraper.
type Option interface {
	applyScraperOption(s *Scraper)
}

type optionFunc func(s *Scraper)

func (f optionFunc) applyScraperOption(s *Scraper) {
	f(s)
}

// WithLogger sets logger for Scraper. It is also used by the default fetcher.
func WithLogger(l ctxd.Logger) Option {
	return optionFunc(func(s *Scraper) {
		s.log = l
	})
}

// WithFetcher replaces the default HTTP fetcher. The scraper owns it and calls its Close() method, if any, on Close.
func WithFetcher(f fetcher.Fetcher) Option {
	return optionFunc(func(s *Scraper) {
		s.fetcher = f
	})
}

// WithFrontierCapacity sets the capacity of the frontier. Default value is frontier.DefaultCapacity.
func WithFrontierCapacity(capacity int) Option {
	return optionFunc(func(s *Scraper) {
		s.capacity = capacity
	})
}

// WithPollInterval sets how long a worker waits for a uri before checking whether it should exit.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(s *Scraper) {
		s.pollInterval = d
	})
}

// WithDeduplication enables or disables fetching every uri at most once. It is enabled by default.
func WithDeduplication(enabled bool) Option {
	return optionFunc(func(s *Scraper) {
		s.dedupe = enabled
	})
}

// WithReportHandler sets the handler that receives a report for every processed uri.
func WithReportHandler(h ReportHandler) Option {
	return optionFunc(func(s *Scraper) {
		s.onReport = h
	})
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return optionFunc(func(s *Scraper) {
		s.metrics = r
	})
}

// WithConnectTimeout sets the connect timeout of the default fetcher.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(s *Scraper) {
		s.connectTimeout = d
	})
}

// WithUserAgent sets the user agent of the default fetcher.
func WithUserAgent(ua string) Option {
	return optionFunc(func(s *Scraper) {
		s.userAgent = ua
	})
}
