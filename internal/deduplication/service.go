package deduplication

import (
	"context"
	"fmt"
	"time"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/tracing"
)

// Service remembers processed event ids for a TTL window.
//
// When the store fails, lenient mode treats the event as new (fail-open)
// and strict mode returns the error so the caller can reject the delivery
// and let the platform retry.
type Service struct {
	store    Store
	ttl      time.Duration
	failMode string
	logger   logger.Logger
	now      func() time.Time

	cancelMetrics context.CancelFunc
}

func NewService(store Store, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = time.Duration(constants.DefaultDedupTTLSeconds) * time.Second
	}
	failMode := cfg.FailMode
	if failMode == "" {
		failMode = constants.FailModeLenient
	}

	return &Service{
		store:    store,
		ttl:      ttl,
		failMode: failMode,
		logger:   log,
		now:      time.Now,
	}
}

func key(eventID string) string {
	return constants.CacheKeyPrefixDedup + eventID
}

func (s *Service) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	start := time.Now()
	exists, err := s.store.Exists(ctx, key(eventID))
	if err != nil {
		return false, s.handleStoreError(ctx, "exists", eventID, err, start)
	}

	s.record(exists, start)
	return exists, nil
}

func (s *Service) MarkProcessed(ctx context.Context, eventID string) error {
	start := time.Now()
	if err := s.store.SetWithExpiry(ctx, key(eventID), s.now().Unix(), s.ttl); err != nil {
		return s.handleStoreError(ctx, "mark", eventID, err, start)
	}
	metrics.ObserveDedup("marked", time.Since(start))
	return nil
}

// CheckAndMark atomically records eventID and reports whether it had
// already been recorded. Two concurrent calls for one id never both see
// duplicate == false while the store is healthy.
func (s *Service) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "deduplication.check_and_mark")
	defer span.End()

	start := time.Now()
	created, err := s.store.SetNX(ctx, key(eventID), s.now().Unix(), s.ttl)
	if err != nil {
		return false, s.handleStoreError(ctx, "check_and_mark", eventID, err, start)
	}

	s.record(!created, start)
	return !created, nil
}

// Forget removes the record for eventID so a later redelivery is accepted.
// Used when an event was marked but could not be queued.
func (s *Service) Forget(ctx context.Context, eventID string) error {
	if err := s.store.Delete(ctx, key(eventID)); err != nil {
		return fmt.Errorf("failed to forget event %s: %w", eventID, err)
	}
	return nil
}

func (s *Service) handleStoreError(ctx context.Context, op, eventID string, err error, start time.Time) error {
	metrics.ObserveDedup("error", time.Since(start))

	if s.failMode == constants.FailModeLenient {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error").Inc()
		s.logger.WarnwCtx(ctx, "Dedup store error, treating event as new (fail_mode: lenient)",
			"operation", op,
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "reject_on_error").Inc()
	return fmt.Errorf("dedup store %s failed for event %s: %w", op, eventID, err)
}

func (s *Service) record(duplicate bool, start time.Time) {
	result := "unique"
	if duplicate {
		result = "duplicate"
	}
	metrics.ObserveDedup(result, time.Since(start))
}

// StartCacheMetrics periodically publishes the approximate number of live
// records until StopCacheMetrics is called or ctx is done.
func (s *Service) StartCacheMetrics(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelMetrics = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				size, err := s.store.Size(ctx, constants.CacheKeyPrefixDedup)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Debugw("Failed to get dedup cache size", "error", err)
					continue
				}
				metrics.SetDedupCacheSize(size)
			}
		}
	}()
}

func (s *Service) StopCacheMetrics() {
	if s.cancelMetrics != nil {
		s.cancelMetrics()
	}
}
