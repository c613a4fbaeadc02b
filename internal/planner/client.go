package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/circuitbreaker"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/models"
	"hookbridge/pkg/retry"
	"hookbridge/pkg/tracing"
)

const maxResponseBytes = 1 << 20

var ErrRejected = errors.New("planner rejected the event")

// EventRequest is the body posted to the planning backend.
type EventRequest struct {
	EventID     string                 `json:"event_id"`
	EventType   models.EventType       `json:"event_type"`
	TenantID    string                 `json:"tenant_id"`
	ActorID     string                 `json:"actor_id,omitempty"`
	ExternalID  string                 `json:"external_user_id,omitempty"`
	BotIdentity string                 `json:"bot_identity,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
	ReceivedAt  time.Time              `json:"received_at"`
}

// Client forwards events to the planning backend. The backend's response
// body is opaque and returned as a map.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	policy     retry.Policy
	breaker    *circuitbreaker.Wrapper
	logger     logger.Logger
}

func NewClient(cfg config.PlannerConfig, breaker circuitbreaker.Overrides, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("planner base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + constants.DefaultPlannerEventsPath,
		apiKey:     cfg.APIKey,
		policy:     cfg.Retry.Policy(),
		breaker:    circuitbreaker.NewOptional("planner", breaker),
		logger:     log,
	}, nil
}

func (c *Client) SendEvent(ctx context.Context, req EventRequest) (map[string]interface{}, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "planner.send_event")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode planner request: %w", err)
	}

	var result map[string]interface{}
	start := time.Now()
	err = retry.RetryWithCallback(ctx, c.policy, func() error {
		out, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			return c.post(ctx, body)
		})
		if err != nil {
			if errors.Is(err, ErrRejected) || errors.Is(err, circuitbreaker.ErrOpen) {
				return retry.Permanent(err)
			}
			return err
		}
		result, _ = out.(map[string]interface{})
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("planner_send").Inc()
		c.logger.WarnwCtx(ctx, "Retrying planner request",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObservePlannerRequest(status, time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, body []byte) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build planner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		req.Header.Set(constants.HeaderRequestID, requestID)
	}
	tracing.InjectHTTPHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read planner response: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("planner returned status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	result := map[string]interface{}{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrRejected)
	}
	return result, nil
}
