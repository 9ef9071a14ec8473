package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bool64/ctxd"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhatthm/webscraper/internal/footprint"
	"github.com/nhatthm/webscraper/internal/frontier"
	"github.com/nhatthm/webscraper/internal/logger"
	"github.com/nhatthm/webscraper/internal/metrics"
	"github.com/nhatthm/webscraper/internal/scraper"
)

const (
	// CodeOK indicates that the program exited with success.
	CodeOK = ExitCode(iota)
	// CodeErrOperationCanceled indicates that the program has been terminated and operation is canceled.
	CodeErrOperationCanceled
	// CodeErrNoInputSource indicates that the program has no input source.
	CodeErrNoInputSource
	// CodeErrOpenInputSource indicates that the program could not open input file.
	CodeErrOpenInputSource
	// CodeErrUnsupportedInputSource indicates that the program could not use the input source.
	CodeErrUnsupportedInputSource
	// CodeErrBadArgs indicates that the provided arguments are invalid.
	CodeErrBadArgs
	// CodeErrOutput indicates that the program could not write to output.
	CodeErrOutput
	// CodeErrForcedShutdown indicates that the in-flight fetches did not finish before the shutdown timeout.
	CodeErrForcedShutdown
	// CodeErrMetricsServer indicates that the metrics server could not start.
	CodeErrMetricsServer
)

const (
	// Limitation for number of workers to avoid resource saturation.
	maxNumWorkers = 256

	defaultShutdownTimeout = 30 * time.Second
)

// ExitCode is the exit code of the program.
type ExitCode int

// Run runs the program to fetch the urls from sources.
//
// It will take only the first valid source as an input. The source types are:
// - []string: A list of URLs.
// - string: A file path that contains a list of URLs, one on each line.
// - io.ReadCloser: A reader that contains a list of URLs, one on each line.
// - io.Reader: A reader that contains a list of URLs, one on each line.
//
// The URLs are fetched as they are, they must be absolute with an http or https scheme.
func Run(cfg Config, inputSources ...any) ExitCode {
	// Configure input source.
	inputSource, code, err := initInputSource(inputSources...)
	if err != nil {
		_, _ = fmt.Fprintln(cfg.ErrWriter, err.Error())

		return code
	}

	defer inputSource.Close() // nolint: errcheck

	if err := validateConfig(cfg); err != nil {
		_, _ = fmt.Fprintln(cfg.ErrWriter, err.Error())

		return CodeErrBadArgs
	}

	log, logCloser := initLogger(cfg.VerbosityLevel, cfg.ErrWriter, cfg.LogFile)
	defer logCloser.Close() // nolint: errcheck

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	// Workers hand their reports to the result writer.
	results := make(chan scraper.Report, cfg.NumWorkers)

	s := initScraper(cfg, log, metrics.NewRecorder(reg), results)

	if cfg.MetricsAddr != "" {
		stopServer, err := serveMetrics(cfg.MetricsAddr, newMetricsRouter(reg, s), log)
		if err != nil {
			_, _ = fmt.Fprintf(cfg.ErrWriter, "could not start metrics server: %s\n", err.Error())

			_ = s.Close(context.Background()) // nolint: errcheck

			return CodeErrMetricsServer
		}

		defer stopServer()
	}

	// Configure resultWriter.
	var writeResult resultWriter

	if cfg.VerbosityLevel > VerbosityLevelSilent {
		// When the verbosity level is not silent, the log messages will be printed to the output randomly.
		// And the application cannot guarantee the prettified output to human users because stdout and stderr are visualized on the same screen.
		// This is not a problem to machines because the log messages are sent to stderr which is another file descriptor.
		//
		// Therefore, we will buffer the output and send at once when all the urls are processed.
		writeResult = bufferedJSONResultWriter(cfg.OutWriter, cfg.PrettyOutput, log)
	} else {
		// When the verbosity level is silent, there is no log messages to print. It would be great to see the progress of the program rather than waiting till
		// the end. Therefore, the program could print out the result as soon as it is ready.
		writeResult = unbufferedJSONResultWriter(cfg.OutWriter, cfg.ErrWriter, cfg.PrettyOutput)
	}

	publishSource := batchSourcePublisher(s, cfg.NumWorkers, capacityOf(cfg), log)

	return doScrape(s, publishSource, writeResult, results, inputSource, shutdownTimeoutOf(cfg), log)
}

// validateConfig checks the number of workers.
//
// nolint: goerr113 // Error will be printed out.
func validateConfig(cfg Config) error {
	if cfg.NumWorkers < 1 {
		return errors.New(`number of workers must be greater than 0`)
	} else if cfg.NumWorkers > maxNumWorkers {
		return fmt.Errorf(`maximum workers is %d`, maxNumWorkers)
	}

	if cfg.Capacity < 0 {
		return errors.New(`capacity must not be negative`)
	}

	return nil
}

// initLogger returns a new logger.
//
// If the verbosity level is silent, all the log messages will be discarded by sending them to io.Discard.
// Otherwise, the logger will write to the stderr writer.
//
// Then the verbosity level is
// - VerbosityLevelError, the log level will be set to logger.ErrorLevel.
// - VerbosityLevelDebug, the log level will be set to logger.DebugLevel.
//
// When a log file is given, it receives the messages of the same level even if the verbosity level is silent.
func initLogger(level VerbosityLevel, errWriter io.Writer, logFile string) (ctxd.Logger, io.Closer) {
	logCfg := logger.Config{
		Output: io.Discard,
		Level:  logger.ErrorLevel,
		File:   logger.FileConfig{Path: logFile},
	}

	if level > VerbosityLevelSilent {
		logCfg.Output = errWriter
	}

	if level > VerbosityLevelError {
		logCfg.Level = logger.DebugLevel
	}

	return logger.NewLogger(logCfg)
}

// initInputSource returns the first valid input source.
//
// It accepts a list of input sources. The source types are:
// - []string: A list of URLs. If the list is empty, it is ignored.
// - string: A file path that contains a list of URLs, one on each line. If the path is empty, it is ignored.
// - io.ReadCloser: A reader that contains a list of URLs, one on each line.
// - io.Reader: A reader that contains a list of URLs, one on each line.
//
// The function returns an input source as an io.ReadCloser so that it can be streamed and closed by the caller.
//
// nolint: cyclop,goerr113 // Error will be printed out.
func initInputSource(sources ...any) (io.ReadCloser, ExitCode, error) {
	for _, source := range sources {
		switch s := source.(type) {
		case nil:
			continue

		case []string:
			if len(s) == 0 {
				continue
			}

			return io.NopCloser(strings.NewReader(strings.Join(s, "\n"))), CodeOK, nil

		case string:
			if len(s) == 0 {
				continue
			}

			f, err := os.Open(filepath.Clean(s))
			if err != nil {
				return nil, CodeErrOpenInputSource, fmt.Errorf("could not open input file: %w", err)
			}

			return f, CodeOK, nil

		case io.ReadCloser:
			return s, CodeOK, nil

		case io.Reader:
			return io.NopCloser(s), CodeOK, nil

		default:
			return nil, CodeErrUnsupportedInputSource, fmt.Errorf("unsupported input source: %T", s)
		}
	}

	return nil, CodeErrNoInputSource, errors.New("no input source")
}

// initScraper initiates a new scraper that sends its reports to the results channel.
func initScraper(cfg Config, log ctxd.Logger, recorder *metrics.Recorder, results chan<- scraper.Report) *scraper.Scraper {
	return scraper.New(cfg.NumWorkers,
		scraper.WithLogger(log),
		scraper.WithMetrics(recorder),
		scraper.WithFrontierCapacity(capacityOf(cfg)),
		scraper.WithPollInterval(cfg.PollInterval),
		scraper.WithDeduplication(!cfg.NoDedupe),
		scraper.WithConnectTimeout(cfg.ConnectTimeout),
		scraper.WithUserAgent(cfg.UserAgent),
		scraper.WithReportHandler(func(r scraper.Report) {
			results <- r
		}),
	)
}

// doScrape publishes the input source to the scraper and writes the reports to the output.
//
// When the input source is exhausted, the scraper drains the frontier and stops, however long it takes. In case of
// SIGINT or SIGTERM, the publishing stops, the in-flight fetches are given the shutdown timeout to finish, and the
// function returns CodeErrOperationCanceled. A second signal, or the end of the shutdown timeout, cancels the in-flight
// fetches and the function returns CodeErrForcedShutdown. In case of output error, the function returns CodeErrOutput.
func doScrape(
	s *scraper.Scraper,
	publishSource sourcePublisher,
	writeResult resultWriter,
	results chan scraper.Report,
	source io.Reader,
	shutdownTimeout time.Duration,
	log ctxd.Logger,
) ExitCode {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go footprint.Track(ctx, log,
		footprint.NewProbe("scraper.pending", func() any { return s.Pending() }),
		footprint.NewProbe("scraper.live_workers", func() any { return s.Workers() }),
	)

	sigs := make(chan os.Signal, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	written := make(chan ExitCode, 1)

	go func() {
		written <- writeResult(results)

		// Keep the workers going if the writer gave up.
		for range results { // nolint: revive
		}
	}()

	// The run is not bound to ctx, a signal lets the in-flight fetches finish.
	if err := s.Start(context.Background()); err != nil {
		// This should not happen because the scraper is brand new.
		log.Error(ctx, "could not start scraper", "error", err)
	}

	published := make(chan error, 1)

	go func() {
		published <- publishSource(ctx, source)
	}()

	code := CodeOK
	signaled := false

	select {
	case <-sigs:
		signaled = true

	case err := <-published:
		if err != nil {
			log.Error(ctx, "could not publish input", "error", err)
		}

		// The input is exhausted, the workers drain the frontier without any deadline.
		s.Stop()

		select {
		case <-s.Done():
		case <-sigs:
			signaled = true
		}
	}

	if signaled {
		log.Debug(ctx, "received termination signal, stopping")

		code = CodeErrOperationCanceled

		cancel()
	}

	s.Stop()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()

	go func() { // Another signal cancels the in-flight fetches.
		select {
		case <-sigs:
			closeCancel()

		case <-closeCtx.Done():
		}
	}()

	if err := s.Close(closeCtx); err != nil {
		log.Error(ctx, "could not stop scraper gracefully", "error", err)

		if errors.Is(err, scraper.ErrForcedShutdown) {
			code = CodeErrForcedShutdown
		}
	}

	close(results)

	if wCode := <-written; wCode != CodeOK && code == CodeOK {
		code = wCode
	}

	return code
}

func capacityOf(cfg Config) int {
	if cfg.Capacity > 0 {
		return cfg.Capacity
	}

	return frontier.DefaultCapacity
}

func shutdownTimeoutOf(cfg Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}

	return defaultShutdownTimeout
}
