//go:build testsignal

package cli_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nhatthm/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhatthm/webscraper/internal/app/cli"
)

// The signal tests must not run in parallel because the signals are sent to the whole process.

func Test_Run_SigTerm(t *testing.T) {
	doneCh := make(chan struct{}, 1)
	syscallCh := make(chan struct{}, 1)

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/path1").
			ReturnCode(200).
			Run(func(r *http.Request) ([]byte, error) {
				close(doneCh) // Signal to kill the test process.

				<-syscallCh // Wait until the signal is broadcast.

				return []byte("hello"), nil
			})
	})(t)

	var (
		code cli.ExitCode
		wg   sync.WaitGroup
	)

	outBuf := new(safeBuffer)
	errBuf := new(safeBuffer)

	wg.Add(1)

	go func() {
		defer wg.Done()

		counter := 0

		code = cli.Run(cli.Config{
			OutWriter:      outBuf,
			ErrWriter:      errBuf,
			VerbosityLevel: cli.VerbosityLevelError,
			NumWorkers:     1,
			PollInterval:   pollInterval,
		}, readerFunc(func(p []byte) (int, error) {
			counter++

			if counter == 2 {
				<-syscallCh
			} else if counter == 3 {
				return 0, io.EOF
			}

			link := fmt.Sprintf("%s/path%d\n", srv.URL(), counter)

			copy(p[:], link)

			return len(link), nil
		}))
	}()

	<-doneCh // Wait until the http server is serving the 1st request.

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGINT)

	time.Sleep(100 * time.Millisecond) // Sleep to give time for the publisher to stop.
	close(syscallCh)                   // Signal the reader to send the 2nd link and the server to respond.

	wg.Wait()

	// The in-flight fetch finishes, the 2nd link is never published.
	expected := fmt.Sprintf(`[{"uri":"%s/path1","final_uri":"%s/path1","status_code":200,"proto":"HTTP/1.1","body_size":5,"outcome":"success","success":true,"error":null}]`, srv.URL(), srv.URL())

	assert.Equal(t, expected, strings.Trim(outBuf.String(), "\r\n"))
	assert.Empty(t, errBuf.String())
	assert.Equal(t, cli.CodeErrOperationCanceled, code)
}

func Test_Run_SigTerm_Twice(t *testing.T) {
	doneCh := make(chan struct{}, 1)
	release := make(chan struct{})

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/path1").
			ReturnCode(200).
			Run(func(r *http.Request) ([]byte, error) {
				close(doneCh)

				<-release

				return nil, nil
			})
	})(t)

	defer close(release)

	var (
		code cli.ExitCode
		wg   sync.WaitGroup
	)

	outBuf := new(safeBuffer)
	errBuf := new(safeBuffer)

	wg.Add(1)

	go func() {
		defer wg.Done()

		counter := 0

		code = cli.Run(cli.Config{
			OutWriter:       outBuf,
			ErrWriter:       errBuf,
			VerbosityLevel:  cli.VerbosityLevelError,
			NumWorkers:      1,
			PollInterval:    pollInterval,
			ShutdownTimeout: time.Minute,
		}, readerFunc(func(p []byte) (int, error) {
			counter++

			if counter > 1 {
				<-release

				return 0, io.EOF
			}

			link := srv.URL() + "/path1\n"

			copy(p[:], link)

			return len(link), nil
		}))
	}()

	<-doneCh

	// The first signal lets the fetch finish, the second one cancels it.
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGINT)

	time.Sleep(100 * time.Millisecond)

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	wg.Wait()

	assert.Contains(t, outBuf.String(), `"outcome":"canceled"`)
	assert.Contains(t, errBuf.String(), "forced shutdown: context canceled")
	assert.Equal(t, cli.CodeErrForcedShutdown, code)
}

func Test_Run_SigTerm_ShutdownTimeout(t *testing.T) {
	received := make(chan struct{})
	release := make(chan struct{})

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/path1").
			ReturnCode(200).
			Run(func(*http.Request) ([]byte, error) {
				close(received)

				<-release

				return nil, nil
			})
	})(t)

	defer close(release)

	var (
		code cli.ExitCode
		wg   sync.WaitGroup
	)

	outBuf := new(safeBuffer)
	errBuf := new(safeBuffer)

	wg.Add(1)

	go func() {
		defer wg.Done()

		code = cli.Run(cli.Config{
			OutWriter:       outBuf,
			ErrWriter:       errBuf,
			NumWorkers:      1,
			PollInterval:    pollInterval,
			ShutdownTimeout: 100 * time.Millisecond,
			VerbosityLevel:  cli.VerbosityLevelError,
		}, []string{srv.URL() + "/path1"})
	}()

	<-received

	// The input is already published, the signal arrives while the frontier drains.
	_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	wg.Wait()

	var reports []map[string]any

	require.NoError(t, json.Unmarshal([]byte(outBuf.String()), &reports))
	require.Len(t, reports, 1)

	assert.Equal(t, "canceled", reports[0]["outcome"])
	assert.Equal(t, false, reports[0]["success"])
	assert.Contains(t, reports[0]["error"], "context canceled")

	assert.Contains(t, errBuf.String(), "could not stop scraper gracefully")
	assert.Contains(t, errBuf.String(), "forced shutdown: context deadline exceeded")
	assert.Equal(t, cli.CodeErrForcedShutdown, code)
}
