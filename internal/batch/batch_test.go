package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"CsvLogPump/internal/models"
)

type recordingSender struct {
	mu      sync.Mutex
	batches [][]models.LogRow
	err     error
}

func (s *recordingSender) InsertBatch(ctx context.Context, rows []models.LogRow) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, rows)
	return s.err
}

func (s *recordingSender) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, len(b))
	}
	return out
}

func TestBatcherFlushesOnSize(t *testing.T) {
	sender := &recordingSender{}
	b := NewBatcher(2, time.Hour, zaptest.NewLogger(t), sender)
	in := make(chan models.LogRow)
	done := make(chan struct{})
	go func() { b.Run(context.Background(), in); close(done) }()

	for i := 0; i < 5; i++ {
		in <- models.LogRow{Line: "x"}
	}
	close(in)
	<-done
	assert.Equal(t, []int{2, 2, 1}, sender.sizes())
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	sender := &recordingSender{}
	b := NewBatcher(100, 20*time.Millisecond, zaptest.NewLogger(t), sender)
	in := make(chan models.LogRow, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx, in); close(done) }()

	in <- models.LogRow{Line: "x"}
	require.Eventually(t, func() bool { return len(sender.sizes()) == 1 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestBatcherFlushesRemainderOnShutdown(t *testing.T) {
	sender := &recordingSender{err: errors.New("ignored")}
	b := NewBatcher(100, time.Hour, zaptest.NewLogger(t), sender)
	in := make(chan models.LogRow, 3)
	in <- models.LogRow{}
	in <- models.LogRow{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx, in); close(done) }()

	require.Eventually(t, func() bool { return len(in) == 0 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []int{2}, sender.sizes())
}
