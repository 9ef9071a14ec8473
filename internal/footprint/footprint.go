// Package footprint reports the resources used by the program.
package footprint

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bool64/ctxd"
)

const reportInterval = 100 * time.Millisecond

// Probe is a named value reported along with the memory usage.
type Probe struct {
	Name  string
	Value func() any
}

// NewProbe creates a new Probe.
func NewProbe(name string, value func() any) Probe {
	return Probe{Name: name, Value: value}
}

// Track tracks the resources usage and write to log until the context is done.
func Track(ctx context.Context, log ctxd.Logger, probes ...Probe) {
	trackEvery(ctx, log, reportInterval, probes...)
}

func trackEvery(ctx context.Context, log ctxd.Logger, interval time.Duration, probes ...Probe) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			log.Debug(ctx, "resource usage", fields(probes)...)
		}
	}
}

func fields(probes []Probe) []any {
	// See: https://golang.org/pkg/runtime/#MemStats
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	result := make([]any, 0, 8+2*len(probes)) // nolint: gomnd // 4 memory fields.
	result = append(result,
		"alloc_mb", formatB(m.Alloc),
		"total_alloc_mb", formatB(m.TotalAlloc),
		"sys_mb", formatB(m.Sys),
		"num_gc", m.NumGC,
	)

	for _, p := range probes {
		result = append(result, p.Name, p.Value())
	}

	return result
}

func formatB(b uint64) string {
	return fmt.Sprintf("%dMiB", b/1024/1024) // nolint: gomnd // bytes conversion.
}
