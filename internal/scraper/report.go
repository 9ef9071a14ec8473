package scraper

import (
	"time"

	"github.com/nhatthm/webscraper/internal/fetcher"
)

// State is the lifecycle state of a Scraper.
type State int32

const (
	// StateIdle means the scraper is created but not started.
	StateIdle State = iota
	// StateRunning means the workers are processing uris.
	StateRunning
	// StateDraining means Stop was called and the workers are processing the remaining uris.
	StateDraining
	// StateStopped means all the workers exited.
	StateStopped
	// StateClosed means the resources are released.
	StateClosed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}

	return "unknown"
}

// Report is the outcome of processing one uri.
type Report struct {
	WorkerID   int
	URI        string
	FinalURI   string
	StatusCode int
	Proto      string
	BodySize   int
	Duration   time.Duration
	Class      fetcher.Class
	Error      error
}

// ReportHandler receives the reports. It is called concurrently by the workers.
type ReportHandler func(r Report)
