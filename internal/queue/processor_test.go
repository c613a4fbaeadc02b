package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookbridge/internal/config"
	"hookbridge/internal/logger"
	"hookbridge/pkg/models"
)

type collectingSink struct {
	mu       sync.Mutex
	outcomes []models.ProcessingOutcome
}

func (s *collectingSink) Record(_ context.Context, outcome models.ProcessingOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *collectingSink) snapshot() []models.ProcessingOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProcessingOutcome(nil), s.outcomes...)
}

func (s *collectingSink) byEventID() map[string]models.ProcessingOutcome {
	out := make(map[string]models.ProcessingOutcome)
	for _, o := range s.snapshot() {
		out[o.EventID] = o
	}
	return out
}

func newEvent(id string, t models.EventType) models.InboundEvent {
	return models.NewInboundEventBuilder().
		WithID(id).
		WithType(t).
		WithTenant("T1").
		WithPayload(map[string]interface{}{"text": "hi"}).
		Build()
}

func newTestProcessor(t *testing.T, cfg config.QueueConfig) (*Processor, *collectingSink) {
	t.Helper()
	sink := &collectingSink{}
	p, err := NewProcessor(cfg, NewRegistry(), sink, logger.NopLogger())
	require.NoError(t, err)
	return p, sink
}

func stop(t *testing.T, p *Processor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestProcessorDispatchesByType(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 2})

	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		return models.Succeeded(e, map[string]interface{}{"handled_by": "message"})
	})
	p.Register(models.EventTypePing, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		return models.Succeeded(e, nil)
	})

	p.Start(context.Background())
	require.NoError(t, p.Enqueue(newEvent("e1", models.EventTypeMessage)))
	require.NoError(t, p.Enqueue(newEvent("e2", models.EventTypePing)))
	require.NoError(t, p.Enqueue(newEvent("e3", models.EventTypeAppHomeOpened)))
	stop(t, p)

	got := sink.byEventID()
	require.Len(t, got, 2, "unhandled type must be dropped without an outcome")
	assert.True(t, got["e1"].Success)
	assert.Equal(t, "message", got["e1"].Context["handled_by"])
	assert.Equal(t, "T1", got["e1"].TenantID)
	assert.True(t, got["e2"].Success)
	assert.Equal(t, models.EventTypePing, got["e2"].EventType)
}

func TestProcessorRecoversFromPanics(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 1})

	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		if e.EventID == "boom" {
			panic("handler exploded")
		}
		return models.Succeeded(e, nil)
	})

	p.Start(context.Background())
	require.NoError(t, p.Enqueue(newEvent("boom", models.EventTypeMessage)))
	require.NoError(t, p.Enqueue(newEvent("after", models.EventTypeMessage)))
	stop(t, p)

	got := sink.byEventID()
	require.Len(t, got, 2)
	assert.False(t, got["boom"].Success)
	assert.Contains(t, got["boom"].Error, "handler exploded")
	assert.Equal(t, models.EventTypeMessage, got["boom"].EventType)
	assert.True(t, got["after"].Success, "worker must survive a panicking handler")
}

type panickingSink struct {
	collectingSink
	panicOn string
}

func (s *panickingSink) Record(ctx context.Context, outcome models.ProcessingOutcome) {
	if outcome.EventID == s.panicOn {
		panic("sink exploded")
	}
	s.collectingSink.Record(ctx, outcome)
}

func TestProcessorSurvivesPanickingSink(t *testing.T) {
	sink := &panickingSink{panicOn: "boom"}
	p, err := NewProcessor(config.QueueConfig{Workers: 1}, NewRegistry(), sink, logger.NopLogger())
	require.NoError(t, err)

	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		return models.Succeeded(e, nil)
	})

	p.Start(context.Background())
	for _, id := range []string{"before", "boom", "after"} {
		require.NoError(t, p.Enqueue(newEvent(id, models.EventTypeMessage)))
	}
	stop(t, p)

	got := sink.byEventID()
	assert.Len(t, got, 2)
	assert.Contains(t, got, "before")
	assert.Contains(t, got, "after", "worker must survive a panicking sink")
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "message", metricLabel(models.EventTypeMessage))
	assert.Equal(t, "tokens_revoked", metricLabel(models.EventTypeTokensRevoked))
	assert.Equal(t, "unknown", metricLabel(models.EventType("attacker_chosen_type_123")))
	assert.Equal(t, "unknown", metricLabel(""))
}

func TestProcessorHandlerTimeout(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 1, HandlerTimeout: 20 * time.Millisecond})

	p.Register(models.EventTypeMessage, func(ctx context.Context, e models.InboundEvent) models.ProcessingOutcome {
		<-ctx.Done()
		return models.Failed(e, ctx.Err())
	})

	p.Start(context.Background())
	require.NoError(t, p.Enqueue(newEvent("slow", models.EventTypeMessage)))
	stop(t, p)

	got := sink.byEventID()
	require.Contains(t, got, "slow")
	assert.False(t, got["slow"].Success)
	assert.Contains(t, got["slow"].Error, "deadline exceeded")
	assert.GreaterOrEqual(t, got["slow"].DurationMS, int64(20))
}

func TestProcessorQueueFullAndStopped(t *testing.T) {
	p, _ := newTestProcessor(t, config.QueueConfig{Capacity: 1, Workers: 1})

	require.NoError(t, p.Enqueue(newEvent("e1", models.EventTypePing)))
	assert.ErrorIs(t, p.Enqueue(newEvent("e2", models.EventTypePing)), ErrQueueFull)
	assert.Equal(t, 1, p.Len())

	stop(t, p)
	assert.ErrorIs(t, p.Enqueue(newEvent("e3", models.EventTypePing)), ErrProcessorStopped)
	assert.NoError(t, p.Stop(context.Background()), "second Stop is a no-op")
}

func TestProcessorEnqueueDoesNotWaitForHandlers(t *testing.T) {
	p, _ := newTestProcessor(t, config.QueueConfig{Workers: 1})

	release := make(chan struct{})
	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		<-release
		return models.Succeeded(e, nil)
	})
	p.Start(context.Background())

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Enqueue(newEvent(string(rune('a'+i)), models.EventTypeMessage)))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	stop(t, p)
}

func TestProcessorGracefulStopDrainsQueue(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 1})

	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		time.Sleep(10 * time.Millisecond)
		return models.Succeeded(e, nil)
	})

	p.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Enqueue(newEvent(string(rune('a'+i)), models.EventTypeMessage)))
	}
	stop(t, p)

	assert.Len(t, sink.snapshot(), 5)
}

func TestProcessorForcedStopCancelsHandlers(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 1, HandlerTimeout: time.Minute})

	var cancelled int32
	started := make(chan struct{}, 1)
	p.Register(models.EventTypeMessage, func(ctx context.Context, e models.InboundEvent) models.ProcessingOutcome {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		atomic.AddInt32(&cancelled, 1)
		return models.Failed(e, ctx.Err())
	})

	p.Start(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Enqueue(newEvent(string(rune('a'+i)), models.EventTypeMessage)))
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
	assert.Len(t, sink.snapshot(), 1, "queued events are discarded after a forced stop")
}

func TestProcessorStartContextDoesNotCancelHandlers(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{Workers: 1})

	p.Register(models.EventTypeMessage, func(ctx context.Context, e models.InboundEvent) models.ProcessingOutcome {
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			return models.Failed(e, ctx.Err())
		}
		return models.Succeeded(e, nil)
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	p.Start(runCtx)
	require.NoError(t, p.Enqueue(newEvent("e1", models.EventTypeMessage)))
	cancelRun()
	stop(t, p)

	got := sink.byEventID()
	require.Contains(t, got, "e1")
	assert.True(t, got["e1"].Success)
}

func TestProcessorDropFilters(t *testing.T) {
	p, sink := newTestProcessor(t, config.QueueConfig{
		Workers:     1,
		DropFilters: []string{`has(payload.bot_id)`, `tenant_id == "blocked"`},
	})

	p.Register(models.EventTypeMessage, func(_ context.Context, e models.InboundEvent) models.ProcessingOutcome {
		return models.Succeeded(e, nil)
	})

	bot := newEvent("bot", models.EventTypeMessage)
	bot.Payload = map[string]interface{}{"bot_id": "B1"}
	blocked := newEvent("blocked", models.EventTypeMessage)
	blocked.TenantID = "blocked"

	p.Start(context.Background())
	require.NoError(t, p.Enqueue(bot))
	require.NoError(t, p.Enqueue(blocked))
	require.NoError(t, p.Enqueue(newEvent("human", models.EventTypeMessage)))
	stop(t, p)

	got := sink.byEventID()
	assert.Len(t, got, 1)
	assert.Contains(t, got, "human")
}

func TestNewProcessorRejectsInvalidFilter(t *testing.T) {
	_, err := NewProcessor(config.QueueConfig{DropFilters: []string{"payload."}}, nil, nil, logger.NopLogger())
	assert.Error(t, err)
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &collectingSink{}, &collectingSink{}
	outcome := models.ProcessingOutcome{Success: true, EventID: "e1"}

	MultiSink{a, b}.Record(context.Background(), outcome)

	assert.Equal(t, []models.ProcessingOutcome{outcome}, a.snapshot())
	assert.Equal(t, []models.ProcessingOutcome{outcome}, b.snapshot())
}
