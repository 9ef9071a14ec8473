package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/bool64/ctxd"

	"github.com/nhatthm/webscraper/internal/scraper"
)

// enqueueRetryInterval is how long the publisher waits before retrying a batch that does not fit into the frontier.
const enqueueRetryInterval = 50 * time.Millisecond

// enqueuer accepts a batch of urls.
type enqueuer interface {
	Enqueue(uris ...string) error
}

// sourcePublisher is a function that reads the urls from a source and publishes them to the scraper. It returns when
// the source is exhausted or the context is done.
type sourcePublisher func(ctx context.Context, source io.Reader) error

// batchSourcePublisher creates a new source publisher that enqueues the urls in batches.
//
// A batch holds the urls that are already read, up to double the number of workers but never more than the capacity
// of the frontier. A slow source is therefore published line by line. When the frontier is full, the publisher waits
// and retries the same batch.
func batchSourcePublisher(q enqueuer, numWorkers, capacity int, log ctxd.Logger) sourcePublisher {
	batchSize := numWorkers * 2 // nolint: gomnd // Batch size is double the number of workers.
	if batchSize > capacity {
		batchSize = capacity
	}

	if batchSize < 1 {
		batchSize = 1
	}

	return func(ctx context.Context, source io.Reader) error {
		log.Debug(ctx, "started batch publisher", "batch_size", batchSize)

		lines := scanLines(ctx, source, log)
		batch := make([]string, 0, batchSize)

		for {
			select {
			case <-ctx.Done():
				log.Debug(ctx, "batch publisher stopped")

				return ctx.Err()

			case uri, ok := <-lines:
				if !ok {
					return nil
				}

				batch = append(batch[:0], uri)
			}

			exhausted := false

		fill:
			for len(batch) < batchSize {
				select {
				case uri, ok := <-lines:
					if !ok {
						exhausted = true

						break fill
					}

					batch = append(batch, uri)

				default:
					break fill
				}
			}

			if err := publishBatch(ctx, q, batch, log); err != nil {
				return err
			}

			if exhausted {
				return nil
			}
		}
	}
}

// scanLines sends the non-empty lines of the source to the returned channel, which is closed at the end of the source.
func scanLines(ctx context.Context, source io.Reader, log ctxd.Logger) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		s := bufio.NewScanner(source)

		for s.Scan() {
			uri := strings.TrimSpace(s.Text())
			if uri == "" {
				continue
			}

			log.Debug(ctx, "publishing source", "source", uri)

			select {
			case <-ctx.Done():
				return

			case lines <- uri:
			}
		}

		if err := s.Err(); err != nil {
			log.Error(ctx, "could not read input for publishing", "error", err)
		}
	}()

	return lines
}

func publishBatch(ctx context.Context, q enqueuer, batch []string, log ctxd.Logger) error {
	for {
		err := q.Enqueue(batch...)
		if err == nil {
			return nil
		}

		if !errors.Is(err, scraper.ErrCapacityExceeded) {
			log.Debug(ctx, "could not publish batch", "error", err, "batch_size", len(batch))

			return err
		}

		log.Debug(ctx, "frontier is full, retrying", "batch_size", len(batch))

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(enqueueRetryInterval):
		}
	}
}
