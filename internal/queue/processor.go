package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/cel"
	apperrors "hookbridge/pkg/errors"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/models"
	"hookbridge/pkg/tracing"
)

var (
	ErrQueueFull        = errors.New("event queue is full")
	ErrProcessorStopped = errors.New("event processor is stopped")
)

type queuedEvent struct {
	event      models.InboundEvent
	enqueuedAt time.Time
}

// Processor is a bounded FIFO drained by a fixed pool of workers. Enqueue
// never waits for a handler. Events are dispatched in arrival order but may
// complete in any order, including events of the same tenant.
type Processor struct {
	registry       *Registry
	sink           OutcomeSink
	filters        []*cel.Filter
	logger         logger.Logger
	workers        int
	handlerTimeout time.Duration

	events chan queuedEvent

	mu      sync.RWMutex
	started bool
	stopped bool

	handlerCtx     context.Context
	cancelHandlers context.CancelFunc
	wg             sync.WaitGroup
}

// NewProcessor compiles cfg.DropFilters up front; an invalid expression is
// a configuration error.
func NewProcessor(cfg config.QueueConfig, registry *Registry, sink OutcomeSink, log logger.Logger) (*Processor, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = constants.DefaultQueueCapacity
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultQueueWorkers
	}
	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHandlerTimeout
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if sink == nil {
		sink = NewLogSink(log)
	}

	var filters []*cel.Filter
	if len(cfg.DropFilters) > 0 {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, err
		}
		filters, err = evaluator.CompileAll(cfg.DropFilters)
		if err != nil {
			return nil, fmt.Errorf("invalid drop filter: %w", err)
		}
	}

	return &Processor{
		registry:       registry,
		sink:           sink,
		filters:        filters,
		logger:         log,
		workers:        workers,
		handlerTimeout: timeout,
		events:         make(chan queuedEvent, capacity),
	}, nil
}

func (p *Processor) Register(eventType models.EventType, handler HandlerFunc) {
	p.registry.Register(eventType, handler)
}

func (p *Processor) Registry() *Registry {
	return p.registry
}

// Enqueue hands event to the workers without blocking. Events enqueued
// before Start wait in the buffer.
func (p *Processor) Enqueue(event models.InboundEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		metrics.IncQueueRejected("stopped")
		return ErrProcessorStopped
	}

	select {
	case p.events <- queuedEvent{event: event, enqueuedAt: time.Now()}:
		metrics.SetQueueDepth(len(p.events))
		return nil
	default:
		metrics.IncQueueRejected("full")
		return ErrQueueFull
	}
}

func (p *Processor) Len() int {
	return len(p.events)
}

// Start launches the workers. Handler contexts outlive ctx's cancellation:
// only Stop cancels them.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.handlerCtx, p.cancelHandlers = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}

	p.logger.Infow("Event processor started",
		"workers", p.workers,
		"capacity", cap(p.events),
		"handlers", p.registry.Types(),
		"drop_filters", len(p.filters),
	)
}

// Stop refuses new events and waits until every queued event has been
// dispatched and every in-flight handler has returned. If ctx ends first,
// handler contexts are cancelled, events still queued are discarded, and
// Stop returns once the workers exit with an error wrapping ctx.Err().
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.events)
	started := p.started
	p.mu.Unlock()

	if !started {
		if n := len(p.events); n > 0 {
			p.logger.Warnw("Event processor stopped before start, discarding queued events", "count", n)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelHandlers()
		p.logger.Infow("Event processor drained and stopped")
		return nil
	case <-ctx.Done():
		undrained := len(p.events)
		p.cancelHandlers()
		<-done
		p.logger.Warnw("Event processor stop deadline exceeded, in-flight handlers cancelled",
			"undrained", undrained,
		)
		return fmt.Errorf("event processor stopped with %d events undrained: %w", undrained, ctx.Err())
	}
}

func (p *Processor) work(id int) {
	defer p.wg.Done()
	for qe := range p.events {
		metrics.SetQueueDepth(len(p.events))
		metrics.ObserveQueueWait(time.Since(qe.enqueuedAt))
		p.dispatch(qe.event)
	}
	p.logger.Debugw("Worker exited", "worker", id)
}

// metricLabel bounds the event_type label to the known types; anything
// else a sender invents is counted as "unknown".
func metricLabel(t models.EventType) string {
	if !t.Known() {
		return "unknown"
	}
	return t.String()
}

func (p *Processor) dispatch(event models.InboundEvent) {
	eventType := metricLabel(event.EventType)

	if p.handlerCtx.Err() != nil {
		metrics.IncDroppedEvent(eventType, "shutdown")
		return
	}

	ctx := logging.WithEventID(p.handlerCtx, event.EventID)
	if event.TenantID != "" {
		ctx = logging.WithTenantID(ctx, event.TenantID)
	}

	for _, f := range p.filters {
		matched, err := f.Matches(ctx, event)
		if err != nil {
			p.logger.WarnwCtx(ctx, "Drop filter evaluation failed, ignoring filter",
				"expression", f.Expression(),
				"error", err,
			)
			continue
		}
		if matched {
			metrics.IncDroppedEvent(eventType, "filtered")
			p.logger.DebugwCtx(ctx, "Event dropped by filter",
				"event_type", eventType,
				"expression", f.Expression(),
			)
			return
		}
	}

	handler, ok := p.registry.Lookup(event.EventType)
	if !ok {
		metrics.IncDroppedEvent(eventType, "unhandled")
		p.logger.WarnwCtx(ctx, "No handler registered, dropping event",
			"event_type", event.EventType,
		)
		return
	}

	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "queue.dispatch")
	defer span.End()

	start := time.Now()
	outcome := p.invoke(ctx, handler, event)
	outcome = outcome.WithDuration(time.Since(start))
	if outcome.EventID == "" {
		outcome.EventID = event.EventID
	}
	if outcome.EventType == "" {
		outcome.EventType = event.EventType
	}
	if outcome.TenantID == "" {
		outcome.TenantID = event.TenantID
	}

	metrics.ObserveOutcome(eventType, outcome.Success, time.Since(start))
	p.record(ctx, outcome)
}

// record hands outcome to the sink. A panicking sink loses that outcome
// but not the worker.
func (p *Processor) record(ctx context.Context, outcome models.ProcessingOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			metrics.IncDroppedEvent(metricLabel(outcome.EventType), "sink_panic")
			p.logger.ErrorwCtx(ctx, "Outcome sink panicked",
				"event_type", outcome.EventType,
				"error", err,
				"stack_trace", apperrors.StackTrace(err),
			)
		}
	}()

	p.sink.Record(ctx, outcome)
}

func (p *Processor) invoke(ctx context.Context, handler HandlerFunc, event models.InboundEvent) (outcome models.ProcessingOutcome) {
	ctx, cancel := context.WithTimeout(ctx, p.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			p.logger.ErrorwCtx(ctx, "Event handler panicked",
				"event_type", event.EventType,
				"error", err,
				"stack_trace", apperrors.StackTrace(err),
			)
			outcome = models.Failed(event, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	return handler(ctx, event)
}
