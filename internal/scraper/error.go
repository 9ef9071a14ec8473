package scraper

import "github.com/nhatthm/webscraper/internal/frontier"

var _ error = (*Error)(nil)

// Error is a scraper error.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	// ErrAlreadyStarted indicates that Start was called more than once.
	ErrAlreadyStarted = Error("scraper already started")
	// ErrClosed indicates that the scraper is closed.
	ErrClosed = Error("scraper closed")
	// ErrStopped indicates that the scraper does not accept new uris because it is stopping.
	ErrStopped = Error("scraper stopped")
	// ErrForcedShutdown indicates that the workers did not finish before the shutdown deadline and the in-flight fetches
	// were canceled.
	ErrForcedShutdown = Error("forced shutdown")
	// ErrFetcherPanic indicates that the fetcher panicked.
	ErrFetcherPanic = Error("fetcher panicked")

	// ErrCapacityExceeded indicates that a batch does not fit into the remaining capacity of the frontier.
	ErrCapacityExceeded = frontier.ErrCapacityExceeded
)
