package debounce_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/debounce"
)

type recorder struct {
	mu    sync.Mutex
	calls []int
}

func (r *recorder) record(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var r recorder
	d := debounce.New(30*time.Millisecond, r.record)

	d.Call(1)
	d.Call(2)
	d.Call(3)
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []int{3}, r.snapshot())
	assert.False(t, d.Pending())
}

func TestDebouncer_DefaultWait(t *testing.T) {
	d := debounce.New(0, func(int) {})
	assert.Equal(t, debounce.DefaultWait, d.Wait())
}

func TestDebouncer_FlushFiresImmediately(t *testing.T) {
	var r recorder
	d := debounce.New(time.Hour, r.record)

	d.Call(7)
	d.Flush()
	assert.False(t, d.Pending())
	assert.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{7}, r.snapshot())
}

func TestDebouncer_FlushWhenIdleIsNoop(t *testing.T) {
	var r recorder
	d := debounce.New(time.Hour, r.record)

	d.Flush()
	require.NoError(t, d.FlushSync(context.Background()))
	assert.Empty(t, r.snapshot())
}

func TestDebouncer_FlushSyncRunsBeforeReturning(t *testing.T) {
	var r recorder
	d := debounce.New(time.Hour, r.record)

	d.Call(1)
	d.Call(2)
	require.NoError(t, d.FlushSync(context.Background()))
	assert.Equal(t, []int{2}, r.snapshot())
	assert.False(t, d.Pending())
}

func TestDebouncer_FlushSyncWaitsForInflightTimer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	d := debounce.New(5*time.Millisecond, func(int) {
		close(started)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
	})
	d.Call(1)
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, d.FlushSync(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}

func TestDebouncer_FlushSyncHonorsContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	d := debounce.New(5*time.Millisecond, func(int) {
		close(started)
		<-release
	})
	d.Call(1)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.FlushSync(ctx), context.DeadlineExceeded)
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	var r recorder
	d := debounce.New(10*time.Millisecond, r.record)

	d.Call(1)
	d.Cancel()
	assert.False(t, d.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestDebouncer_CallAfterCancelRearms(t *testing.T) {
	var r recorder
	d := debounce.New(10*time.Millisecond, r.record)

	d.Call(1)
	d.Cancel()
	d.Call(2)
	assert.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, r.snapshot())
}
