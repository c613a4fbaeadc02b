package webhook

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/errors"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/models"
	"hookbridge/pkg/tracing"
)

const (
	stageHeaders   = "headers"
	stageSignature = "signature"
	stageParse     = "parse"
	stageChallenge = "challenge"
	stageDedup     = "dedup"
	stageEnqueue   = "enqueue"
	stageAccepted  = "accepted"
)

type Deduplicator interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Enqueuer must not block on handler execution.
type Enqueuer interface {
	Enqueue(event models.InboundEvent) error
}

type Handler struct {
	validator    *SignatureValidator
	dedup        Deduplicator
	queue        Enqueuer
	logger       logger.Logger
	ackDeadline  time.Duration
	maxBodyBytes int64
	now          func() time.Time
}

func NewHandler(cfg config.WebhookConfig, dedup Deduplicator, queue Enqueuer, log logger.Logger) *Handler {
	ackDeadline := cfg.AckDeadline
	if ackDeadline <= 0 {
		ackDeadline = constants.DefaultAckDeadline
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = constants.DefaultMaxBodyBytes
	}

	return &Handler{
		validator:    NewSignatureValidator(cfg.SigningSecret, WithTolerance(cfg.TimestampTolerance)),
		dedup:        dedup,
		queue:        queue,
		logger:       log,
		ackDeadline:  ackDeadline,
		maxBodyBytes: maxBody,
		now:          time.Now,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/webhook/events", h.HandleEvent)
	router.POST("/slack/events", h.HandleEvent)
}

// HandleEvent acknowledges one webhook delivery. It never waits for the
// event's handler: once the event is queued the response is written.
func (h *Handler) HandleEvent(c *gin.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.ackDeadline)
	defer cancel()

	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "webhook.handle_event")
	defer span.End()

	stage := stageHeaders
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			h.logger.ErrorwCtx(ctx, "Webhook handler panicked",
				"stage", stage,
				"elapsed_ms", time.Since(start).Milliseconds(),
				"error", err,
				"stack_trace", errors.StackTrace(err),
			)
			h.fail(c, stage, start, errors.ErrInternal)
		}
	}()

	timestamp := c.GetHeader(constants.HeaderSignatureTimestamp)
	signature := c.GetHeader(constants.HeaderSignature)
	if timestamp == "" || signature == "" {
		h.reject(ctx, c, stage, start, errors.ErrMissingHeaders)
		return
	}

	stage = stageSignature
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.reject(ctx, c, stage, start, errors.ErrPayloadTooLarge)
			return
		}
		h.reject(ctx, c, stage, start, errors.ErrInvalidJSON.WithCause(err))
		return
	}

	if !h.validator.Validate(timestamp, body, signature) {
		h.reject(ctx, c, stage, start, errors.ErrInvalidSignature)
		return
	}

	stage = stageParse
	parsed, err := parseDelivery(body, h.now())
	if err != nil {
		h.reject(ctx, c, stage, start, err)
		return
	}

	if parsed.isChallenge {
		metrics.ObserveWebhook(stageChallenge, http.StatusOK, time.Since(start))
		c.JSON(http.StatusOK, gin.H{"challenge": parsed.challenge})
		return
	}

	event := parsed.event
	ctx = logging.WithEventID(ctx, event.EventID)
	if event.TenantID != "" {
		ctx = logging.WithTenantID(ctx, event.TenantID)
	}

	stage = stageDedup
	duplicate, err := h.dedup.CheckAndMark(ctx, event.EventID)
	if err != nil {
		h.internalError(ctx, c, stage, start, err)
		return
	}
	if duplicate {
		h.logger.InfowCtx(ctx, "Duplicate delivery acknowledged",
			"event_type", event.EventType,
		)
		h.accept(c, stageDedup, start)
		return
	}

	stage = stageEnqueue
	if err := h.queue.Enqueue(event); err != nil {
		if forgetErr := h.dedup.Forget(ctx, event.EventID); forgetErr != nil {
			h.logger.WarnwCtx(ctx, "Failed to forget event after enqueue failure",
				"error", forgetErr,
			)
		}
		h.internalError(ctx, c, stage, start, err)
		return
	}

	h.logger.DebugwCtx(ctx, "Event accepted",
		"event_type", event.EventType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	h.accept(c, stageAccepted, start)
}

func (h *Handler) accept(c *gin.Context, stage string, start time.Time) {
	metrics.ObserveWebhook(stage, http.StatusOK, time.Since(start))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) reject(ctx context.Context, c *gin.Context, stage string, start time.Time, err error) {
	h.logger.WarnwCtx(ctx, "Webhook rejected",
		"stage", stage,
		"code", errors.CodeOf(err),
		"error", err,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	h.fail(c, stage, start, err)
}

func (h *Handler) internalError(ctx context.Context, c *gin.Context, stage string, start time.Time, err error) {
	h.logger.ErrorwCtx(ctx, "Webhook processing failed",
		"stage", stage,
		"error", err,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	h.fail(c, stage, start, errors.ErrInternal)
}

func (h *Handler) fail(c *gin.Context, stage string, start time.Time, err error) {
	status := errors.ToHTTPStatus(err)
	metrics.ObserveWebhook(stage, status, time.Since(start))
	c.AbortWithStatusJSON(status, errors.ToErrorResponse(err))
}
