package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
)

var _ error = (*Error)(nil)

// Error is a fetcher error.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	// ErrInvalidURI indicates that the uri could not be used for sending a request.
	ErrInvalidURI = Error("invalid uri")
	// ErrMissingHostname indicates that the uri is missing hostname.
	ErrMissingHostname = Error("missing hostname")
	// ErrUnsupportedScheme indicates that the uri contains an unsupported scheme.
	ErrUnsupportedScheme = Error("unsupported scheme")
	// ErrClosed indicates that the fetcher has been closed.
	ErrClosed = Error("fetcher closed")
)

// Class is the classification of a fetch outcome. It decides whether a worker keeps going after a failure.
type Class int

const (
	// ClassSuccess means the response was received.
	ClassSuccess Class = iota
	// ClassTransient means a network or io failure that only affects the current uri.
	ClassTransient
	// ClassInvalidURI means the uri could not be requested at all. It only affects the current uri.
	ClassInvalidURI
	// ClassCanceled means the fetch was interrupted because the caller is shutting down.
	ClassCanceled
	// ClassUnclassified means an unexpected failure.
	ClassUnclassified
)

// String returns the name of the class.
func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassInvalidURI:
		return "invalid_uri"
	case ClassCanceled:
		return "canceled"
	case ClassUnclassified:
		return "unclassified"
	}

	return "unknown"
}

// Recoverable reports whether a worker could keep processing other uris after an outcome of this class.
func (c Class) Recoverable() bool {
	return c == ClassSuccess || c == ClassTransient || c == ClassInvalidURI
}

// FetchError is the error returned by HTTPFetcher.Fetch.
type FetchError struct {
	URI   string
	Class Class
	Err   error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Classify returns the class of an error returned by a fetcher.
//
// A *FetchError carries its own class. Other errors are classified by their chain: context.Canceled and ErrClosed are
// cancellations, ErrInvalidURI is an invalid uri, network and io errors are transient and everything else is
// unclassified.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}

	var fErr *FetchError
	if errors.As(err, &fErr) {
		return fErr.Class
	}

	return classify(err)
}

func classify(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return ClassCanceled
	}

	if errors.Is(err, ErrInvalidURI) {
		return ClassInvalidURI
	}

	var (
		netErr net.Error
		urlErr *url.Error
	)

	switch {
	case errors.As(err, &netErr),
		errors.As(err, &urlErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	return ClassUnclassified
}
