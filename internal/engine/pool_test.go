package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/internal/logging"
	"github.com/auraos/orchestrator/pkg/schema"
)

func TestRunPool_RejectsSecondRunOfSameWorkflow(t *testing.T) {
	pool := NewRunPool(logging.Discard())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(context.Background(), "wf", func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	assert.True(t, pool.InFlight("wf"))

	err := pool.Submit(context.Background(), "wf", func(context.Context) {})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))

	err = pool.Run(context.Background(), "wf", func(context.Context) {})
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))

	var other atomic.Bool
	require.NoError(t, pool.Run(context.Background(), "other", func(context.Context) { other.Store(true) }))
	assert.True(t, other.Load(), "other workflows are not blocked")

	close(release)
	pool.Wait()
	assert.False(t, pool.InFlight("wf"))

	m := pool.Metrics()
	assert.Equal(t, int64(0), m.Active)
	assert.Equal(t, int64(2), m.Completed)
	assert.Equal(t, int64(2), m.Rejected)
}

func TestRunPool_RecoversPanics(t *testing.T) {
	pool := NewRunPool(logging.Discard())
	require.NoError(t, pool.Run(context.Background(), "wf", func(context.Context) { panic("bad step") }))

	assert.False(t, pool.InFlight("wf"))
	assert.Equal(t, int64(1), pool.Metrics().Panics)
	require.NoError(t, pool.Run(context.Background(), "wf", func(context.Context) {}))
}

func TestRunPool_Shutdown(t *testing.T) {
	pool := NewRunPool(logging.Discard())
	var done atomic.Bool
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "wf", func(context.Context) {
		<-release
		done.Store(true)
	}))

	go close(release)
	pool.Shutdown()
	assert.True(t, done.Load(), "shutdown waits for in-flight runs")

	assert.ErrorIs(t, pool.Submit(context.Background(), "wf", func(context.Context) {}), ErrPoolShutdown)
	assert.ErrorIs(t, pool.Run(context.Background(), "x", func(context.Context) {}), ErrPoolShutdown)
}
