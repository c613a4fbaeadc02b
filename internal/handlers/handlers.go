package handlers

import (
	"context"
	"errors"
	"fmt"

	"hookbridge/internal/logger"
	"hookbridge/internal/oauth"
	"hookbridge/internal/planner"
	"hookbridge/internal/queue"
	"hookbridge/internal/usermapping"
	"hookbridge/pkg/models"
)

type Registrar interface {
	Register(eventType models.EventType, handler queue.HandlerFunc)
}

type PlannerClient interface {
	SendEvent(ctx context.Context, req planner.EventRequest) (map[string]interface{}, error)
}

type CredentialSource interface {
	GetCredential(ctx context.Context, tenantID string) (*oauth.ActiveCredential, error)
}

type Uninstaller interface {
	HandleUninstall(ctx context.Context, tenantID string) (oauth.UninstallReport, error)
}

type Dependencies struct {
	Planner     PlannerClient
	Credentials CredentialSource
	Mappings    usermapping.Store
	Uninstaller Uninstaller
	Logger      logger.Logger
}

// RegisterDefaults wires the built-in handlers. A nil Planner leaves
// conversational events unhandled; a nil Uninstaller does the same for
// uninstall events.
func RegisterDefaults(r Registrar, deps Dependencies) {
	r.Register(models.EventTypePing, Ping)

	if deps.Planner != nil && deps.Credentials != nil {
		forward := forwardToPlanner(deps)
		r.Register(models.EventTypeMessage, forward)
		r.Register(models.EventTypeAppMention, forward)
	}

	if deps.Uninstaller != nil {
		r.Register(models.EventTypeAppUninstalled, uninstall(deps.Uninstaller))
		r.Register(models.EventTypeTokensRevoked, tokensRevoked(deps.Uninstaller))
	}
}

func Ping(_ context.Context, event models.InboundEvent) models.ProcessingOutcome {
	return models.Succeeded(event, nil)
}

func forwardToPlanner(deps Dependencies) queue.HandlerFunc {
	return func(ctx context.Context, event models.InboundEvent) models.ProcessingOutcome {
		cred, err := deps.Credentials.GetCredential(ctx, event.TenantID)
		if errors.Is(err, oauth.ErrCredentialNotFound) {
			return models.Failed(event, fmt.Errorf("tenant %q is not installed", event.TenantID))
		}
		if err != nil {
			return models.Failed(event, err)
		}

		req := planner.EventRequest{
			EventID:     event.EventID,
			EventType:   event.EventType,
			TenantID:    event.TenantID,
			ActorID:     event.ActorID,
			BotIdentity: cred.BotIdentity,
			Payload:     event.Payload,
			ReceivedAt:  event.ReceivedAt,
		}

		if deps.Mappings != nil && event.ActorID != "" {
			mapping, err := deps.Mappings.Get(ctx, event.TenantID, event.ActorID)
			switch {
			case err == nil:
				req.ExternalID = mapping.ExternalID
			case !errors.Is(err, usermapping.ErrNotFound) && deps.Logger != nil:
				deps.Logger.WarnwCtx(ctx, "User mapping lookup failed", "actor_id", event.ActorID, "error", err)
			}
		}

		result, err := deps.Planner.SendEvent(ctx, req)
		if err != nil {
			return models.Failed(event, err)
		}
		return models.Succeeded(event, map[string]interface{}{
			"handled_by": "planner",
			"planner":    result,
			"mapped":     req.ExternalID != "",
		})
	}
}

func uninstall(u Uninstaller) queue.HandlerFunc {
	return func(ctx context.Context, event models.InboundEvent) models.ProcessingOutcome {
		report, err := u.HandleUninstall(ctx, event.TenantID)
		details := map[string]interface{}{
			"credential_revoked": report.CredentialRevoked,
			"mappings_deleted":   report.MappingsDeleted,
		}
		if err != nil {
			outcome := models.Failed(event, err)
			details["failed_steps"] = report.FailedSteps()
			outcome.Context = details
			return outcome
		}
		return models.Succeeded(event, details)
	}
}

// tokensRevoked uninstalls the tenant only when its bot token is among the
// revoked ones; revoking user tokens leaves the installation intact.
func tokensRevoked(u Uninstaller) queue.HandlerFunc {
	full := uninstall(u)
	return func(ctx context.Context, event models.InboundEvent) models.ProcessingOutcome {
		if !botTokensRevoked(event.Payload) {
			return models.Succeeded(event, map[string]interface{}{"ignored": "user tokens only"})
		}
		return full(ctx, event)
	}
}

func botTokensRevoked(payload map[string]interface{}) bool {
	tokens, ok := payload["tokens"].(map[string]interface{})
	if !ok {
		// Flat payloads carry no token breakdown.
		return true
	}
	bots, _ := tokens["bot"].([]interface{})
	return len(bots) > 0
}
