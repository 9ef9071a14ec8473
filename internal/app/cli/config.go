package cli

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VerbosityLevel is the verbosity level of the application.
type VerbosityLevel uint

const (
	// VerbosityLevelSilent is the silent verbosity level.
	VerbosityLevelSilent VerbosityLevel = iota
	// VerbosityLevelError is the error verbosity level.
	VerbosityLevelError
	// VerbosityLevelDebug is the debug verbosity level.
	VerbosityLevelDebug
)

// Config is the configuration of the application.
type Config struct {
	OutWriter io.Writer // The stream that will receive the reports.
	ErrWriter io.Writer // The stream that will receive all the log messages and errors.

	NumWorkers      int            // The number of workers that fetch the urls.
	Capacity        int            // The maximum number of pending urls. Default to 10000.
	ConnectTimeout  time.Duration  // The timeout for establishing a connection. Default to 5s.
	PollInterval    time.Duration  // How long an idle worker waits for an url. Default to 1s.
	ShutdownTimeout time.Duration  // How long to wait for the in-flight fetches when stopping. Default to 30s.
	NoDedupe        bool           // Fetch every occurrence of an url instead of only the first one.
	UserAgent       string         // The user agent of the requests.
	PrettyOutput    bool           // Enable JSON prettifier.
	VerbosityLevel  VerbosityLevel // The verbosity level of the tool.
	LogFile         string         // The path of a rotated file that also receives the log messages.

	MetricsAddr string               // The address of the metrics server, disabled if empty.
	Registry    *prometheus.Registry // The registry of the metrics, a new one is created if nil.
}
