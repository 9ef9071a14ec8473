package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/bool64/ctxd"

	"github.com/nhatthm/webscraper/internal/fetcher"
)

// work is the loop of one worker. It exits when its context is canceled, when the scraper is stopping and the frontier
// is empty, or after a failure that is not recoverable.
func (s *Scraper) work(ctx context.Context, id int) {
	defer s.wg.Done()

	defer func() {
		s.workers.Dec()
		s.metrics.WorkerStopped()
	}()

	s.log.Debug(ctx, "started scraper worker")

	for {
		uri, ok, err := s.frontier.Dequeue(ctx, s.pollInterval)
		if err != nil {
			s.log.Debug(ctx, "stopped scraper worker", "reason", err.Error())

			return
		}

		if !ok {
			if s.isStopping() && s.frontier.Len() == 0 {
				s.log.Debug(ctx, "stopped scraper worker", "reason", "frontier drained")

				return
			}

			continue
		}

		s.metrics.SetFrontierDepth(s.frontier.Len())

		if !s.process(ctx, id, uri) {
			return
		}
	}
}

// process fetches the uri and reports whether the worker should keep going.
func (s *Scraper) process(ctx context.Context, id int, uri string) bool {
	ctx = ctxd.AddFields(ctx, "scraper.uri", uri)

	if s.dedupe && !s.visited.Add(uri) {
		s.log.Debug(ctx, "skipped visited uri")

		return true
	}

	r := s.fetch(ctx, id, uri)

	s.metrics.ObserveFetch(uri, r.Class.String(), r.BodySize, r.Duration)

	if s.onReport != nil {
		s.onReport(r)
	}

	switch r.Class { // nolint: exhaustive // Success needs nothing.
	case fetcher.ClassTransient, fetcher.ClassInvalidURI:
		s.log.Error(ctx, "failed to fetch uri", "error", r.Error, "scraper.failure_class", r.Class.String())

	case fetcher.ClassCanceled:
		s.log.Debug(ctx, "fetch canceled", "error", r.Error)

		return false

	case fetcher.ClassUnclassified:
		s.log.Error(ctx, "unexpected fetch failure, stopping worker",
			"error", r.Error,
			"scraper.live_workers", s.workers.Load()-1,
		)

		return false
	}

	return true
}

// fetch calls the fetcher and turns the outcome into a report. A panic of the fetcher is reported as unclassified.
func (s *Scraper) fetch(ctx context.Context, id int, uri string) (r Report) {
	r = Report{WorkerID: id, URI: uri}
	startTime := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.Class = fetcher.ClassUnclassified
			r.Error = fmt.Errorf("%w: %v", ErrFetcherPanic, p)
		}

		if r.Duration == 0 {
			r.Duration = time.Since(startTime)
		}
	}()

	resp, err := s.fetcher.Fetch(ctx, uri)
	if err != nil {
		r.Class = fetcher.Classify(err)
		r.Error = err

		// Whatever the fetcher says, a failure after the run is canceled is a cancellation.
		if ctx.Err() != nil {
			r.Class = fetcher.ClassCanceled
		}

		return r
	}

	r.FinalURI = resp.FinalURI
	r.StatusCode = resp.StatusCode
	r.Proto = resp.Proto
	r.BodySize = len(resp.Body)
	r.Duration = resp.Duration
	r.Class = fetcher.ClassSuccess

	return r
}
