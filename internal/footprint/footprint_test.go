package footprint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bool64/ctxd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		trackEvery(ctx, log, 5*time.Millisecond,
			NewProbe("scraper.pending", func() any { return 42 }),
			NewProbe("scraper.live_workers", func() any { return 3 }),
		)
	}()

	assert.Eventually(t, func() bool { return log.count() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}

	msg, kv := log.last()

	assert.Equal(t, "resource usage", msg)
	require.Len(t, kv, 12)
	assert.Equal(t, "alloc_mb", kv[0])
	assert.Equal(t, "num_gc", kv[6])
	assert.Equal(t, []any{"scraper.pending", 42, "scraper.live_workers", 3}, kv[8:])
}

func TestFormatB(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0MiB", formatB(1023))
	assert.Equal(t, "1MiB", formatB(1024*1024))
	assert.Equal(t, "12MiB", formatB(12*1024*1024+1))
}

type recordingLogger struct {
	ctxd.NoOpLogger

	mu       sync.Mutex
	messages []string
	fields   [][]any
}

func (l *recordingLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	l.fields = append(l.fields, keysAndValues)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.messages)
}

func (l *recordingLogger) last() (string, []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.messages) - 1

	return l.messages[n], l.fields[n]
}
