package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bool64/ctxd"

	"github.com/nhatthm/webscraper/internal/scraper"
)

const jsonIndent = "  "

// resultWriter is a function that writes the reports of the scraper to a writer.
type resultWriter func(results <-chan scraper.Report) ExitCode

// nolint: tagliatelle
type scrapeResult struct {
	URI        string  `json:"uri"`
	FinalURI   string  `json:"final_uri,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	Proto      string  `json:"proto,omitempty"`
	BodySize   int     `json:"body_size"`
	Outcome    string  `json:"outcome"`
	Success    bool    `json:"success"`
	Error      *string `json:"error"`
}

// bufferedJSONResultWriter creates a new result writer that writes the reports to memory and then the output at the end of the process.
//
// In case of error while writing to the output, the error will be logged and the process will stop with exit code CodeErrOutput.
func bufferedJSONResultWriter(out io.Writer, pretty bool, log ctxd.Logger) resultWriter {
	return func(results <-chan scraper.Report) (code ExitCode) {
		code = CodeOK
		ctx := context.Background()
		buf := make([]scrapeResult, 0)

		defer func() {
			enc := json.NewEncoder(out)

			if pretty {
				enc.SetIndent("", jsonIndent)
			}

			if err := enc.Encode(buf); err != nil {
				code = CodeErrOutput

				log.Error(ctx, "failed to encode report", "error", err)
			}
		}()

		for r := range results {
			log.Debug(ctx, "received report", "uri", r.URI, "outcome", r.Class.String())

			buf = append(buf, toScrapeResult(r))
		}

		return code
	}
}

// unbufferedJSONResultWriter creates a new result writer that writes the reports to output as soon as they arrive.
//
// In case of error while writing to the output, the error will be printed to the error output and the process will stop with exit code CodeErrOutput.
func unbufferedJSONResultWriter(out, outErr io.Writer, pretty bool) resultWriter {
	return func(results <-chan scraper.Report) (code ExitCode) {
		writeErr := func(format string, args ...any) {
			code = CodeErrOutput
			_, _ = fmt.Fprintf(outErr, format, args...)
		}

		buf := new(bytes.Buffer)
		enc := json.NewEncoder(buf)
		join := ""

		newL, startIndent, joinTmpl := "", "", ","

		if pretty {
			newL, startIndent = "\n", jsonIndent
			joinTmpl = ",\n" + startIndent

			enc.SetIndent(jsonIndent, jsonIndent)
		}

		if _, err := fmt.Fprint(out, "[", newL, startIndent); err != nil {
			writeErr("could not write [ to output: %s\n", err)

			return
		}

		defer func() {
			if code != CodeOK {
				return
			}

			if _, err := fmt.Fprint(out, newL, "]\n"); err != nil {
				writeErr("could not write ] to output: %s\n", err)
			}
		}()

		for r := range results {
			buf.Reset()

			if err := enc.Encode(toScrapeResult(r)); err != nil { // This should not happen.
				writeErr("could not encode %q report: %s", r.URI, err.Error())

				return
			}

			if _, err := fmt.Fprint(out, join, strings.Trim(buf.String(), "\r\n")); err != nil {
				writeErr("could not write %q report: %s", r.URI, err.Error())

				return
			}

			join = joinTmpl
		}

		return CodeOK
	}
}

// toScrapeResult converts a scraper.Report to scrapeResult for output.
func toScrapeResult(r scraper.Report) scrapeResult {
	result := scrapeResult{
		URI:        r.URI,
		FinalURI:   r.FinalURI,
		StatusCode: r.StatusCode,
		Proto:      r.Proto,
		BodySize:   r.BodySize,
		Outcome:    r.Class.String(),
		Success:    r.Error == nil,
	}

	if r.Error != nil {
		err := r.Error.Error()
		result.Error = &err
	}

	return result
}
