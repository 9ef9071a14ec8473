package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bool64/ctxd"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhatthm/webscraper/internal/metrics"
	"github.com/nhatthm/webscraper/internal/scraper"
)

const (
	readHeaderTimeout = 5 * time.Second
	serverStopTimeout = 5 * time.Second
)

// healthStatus is the body of the health endpoint.
// nolint: tagliatelle
type healthStatus struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	RunID   string `json:"run_id"`
	Workers int    `json:"workers"`
	Pending int    `json:"pending"`
}

// newMetricsRouter serves the metrics of the gatherer and the health of the scraper.
func newMetricsRouter(g prometheus.Gatherer, s *scraper.Scraper) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:  "ok",
			State:   s.State().String(),
			RunID:   s.RunID(),
			Workers: s.Workers(),
			Pending: s.Pending(),
		}

		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(status) // nolint: errchkjson
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(g))

	return r
}

// serveMetrics starts the metrics server in the background. The returned function shuts it down.
func serveMetrics(addr string, handler http.Handler, log ctxd.Logger) (func(), error) {
	ctx := context.Background()

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err // nolint: wrapcheck
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		log.Debug(ctx, "metrics server started", "addr", l.Addr().String())

		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(ctx, serverStopTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error(ctx, "metrics server shutdown error", "error", err)
		}

		<-done
	}, nil
}
