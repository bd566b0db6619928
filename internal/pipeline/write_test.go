package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/models"
)

// feed returns a recv func over records followed by io.EOF
func feed(records ...*models.Record) func() (*models.Record, error) {
	i := 0
	return func() (*models.Record, error) {
		if i >= len(records) {
			return nil, io.EOF
		}
		r := records[i]
		i++
		return r, nil
	}
}

func upsert(id, data string) *models.Record {
	return &models.Record{CorrelationID: id, Action: models.ActionUpsert, DataJSON: data}
}

func collect(acks *[]*models.RecordAck) func(*models.RecordAck) error {
	return func(a *models.RecordAck) error {
		*acks = append(*acks, a)
		return nil
	}
}

func customerJob(sla time.Duration) WriteJob {
	return WriteJob{Schema: testSchema(busobject.CustomerInformation), CommitSLA: sla}
}

func TestWriterRun(t *testing.T) {
	backend := &memBackend{
		put: func(ctx context.Context, s *models.Schema, r *models.Record) error {
			if r.CorrelationID == "2" {
				return errors.New(errors.ErrorTypeWrite, "Duplicate key not allowed")
			}
			return nil
		},
	}

	var acks []*models.RecordAck
	stats, err := NewWriter(backend).Run(context.Background(), customerJob(time.Second),
		feed(upsert("1", `{"CustomerNo$":"A"}`), upsert("2", `{"CustomerNo$":"B"}`), upsert("3", `{"CustomerNo$":"C"}`)),
		collect(&acks), always)
	require.NoError(t, err)

	require.Len(t, acks, 3)
	assert.Equal(t, "1", acks[0].CorrelationID)
	assert.True(t, acks[0].Succeeded())
	assert.Equal(t, "2", acks[1].CorrelationID)
	assert.Equal(t, "write: Duplicate key not allowed", acks[1].Error)
	assert.Equal(t, "3", acks[2].CorrelationID)
	assert.True(t, acks[2].Succeeded())

	assert.Equal(t, Stats{Received: 3, Succeeded: 2, Failed: 1}, stats)
}

func TestWriterRunTimesOut(t *testing.T) {
	release := make(chan struct{})
	var landed int32

	backend := &memBackend{
		put: func(ctx context.Context, s *models.Schema, r *models.Record) error {
			if r.CorrelationID == "slow" {
				<-release
				atomic.StoreInt32(&landed, 1)
			}
			return nil
		},
	}

	var acks []*models.RecordAck
	stats, err := NewWriter(backend).Run(context.Background(), customerJob(20*time.Millisecond),
		feed(upsert("slow", `{}`), upsert("fast", `{}`)),
		collect(&acks), always)
	require.NoError(t, err)

	require.Len(t, acks, 2)
	assert.Equal(t, "timed out", acks[0].Error)
	assert.True(t, acks[1].Succeeded())
	assert.Equal(t, Stats{Received: 2, Succeeded: 1, TimedOut: 1}, stats)

	// the abandoned write still completes
	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&landed) == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriterRunStopsWhenInactive(t *testing.T) {
	var puts int32
	backend := &memBackend{
		put: func(ctx context.Context, s *models.Schema, r *models.Record) error {
			atomic.AddInt32(&puts, 1)
			return nil
		},
	}

	active := true
	var acks []*models.RecordAck
	stats, err := NewWriter(backend).Run(context.Background(), customerJob(time.Second),
		feed(upsert("1", `{}`), upsert("2", `{}`), upsert("3", `{}`)),
		func(a *models.RecordAck) error {
			acks = append(acks, a)
			active = false
			return nil
		},
		func() bool { return active })
	require.NoError(t, err)
	assert.Len(t, acks, 1)
	assert.Equal(t, 1, stats.Received)
	assert.Equal(t, int32(1), puts)
}

func TestWriterRunErrors(t *testing.T) {
	t.Run("recv error", func(t *testing.T) {
		recvErr := stderrors.New("transport is closing")
		_, err := NewWriter(&memBackend{}).Run(context.Background(), customerJob(time.Second),
			func() (*models.Record, error) { return nil, recvErr },
			func(*models.RecordAck) error { return nil }, always)
		require.ErrorIs(t, err, recvErr)
	})

	t.Run("send error", func(t *testing.T) {
		sendErr := stderrors.New("stream reset")
		stats, err := NewWriter(&memBackend{}).Run(context.Background(), customerJob(time.Second),
			feed(upsert("1", `{}`), upsert("2", `{}`)),
			func(*models.RecordAck) error { return sendErr }, always)
		require.ErrorIs(t, err, sendErr)
		assert.Equal(t, 1, stats.Received)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewWriter(&memBackend{}).Run(ctx, customerJob(time.Second),
			feed(upsert("1", `{}`)),
			func(*models.RecordAck) error { return nil }, always)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestDetachedPut(t *testing.T) {
	t.Run("returns the put result", func(t *testing.T) {
		want := stderrors.New("nWrite failed")
		err := DetachedPut(context.Background(), time.Second, func(ctx context.Context) error { return want })
		require.ErrorIs(t, err, want)
	})

	t.Run("keeps context values without cancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(logger.WithRequestID(context.Background(), "req-1"))
		seen := make(chan context.Context, 1)

		err := DetachedPut(parent, time.Second, func(ctx context.Context) error {
			cancel()
			seen <- ctx
			return nil
		})
		// either the put result or the parent cancellation wins the race
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
		}

		ctx := <-seen
		assert.NoError(t, ctx.Err())
		assert.Equal(t, "req-1", ctx.Value(logger.RequestIDKey))
	})

	t.Run("zero sla waits", func(t *testing.T) {
		err := DetachedPut(context.Background(), 0, func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("sla exceeded", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		err := DetachedPut(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
			<-block
			return nil
		})
		require.ErrorIs(t, err, ErrTimedOut)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	})
}
