package oauth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	apperrors "hookbridge/pkg/errors"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/ratelimit"
)

// Handler exposes the install flow and the admin uninstall endpoint.
type Handler struct {
	manager    *Manager
	adminToken string
	successURL string
	limiter    *ratelimit.Limiter
	logger     logger.Logger
}

func NewHandler(manager *Manager, adminToken, successURL string, limiter *ratelimit.Limiter, log logger.Logger) *Handler {
	return &Handler{
		manager:    manager,
		adminToken: adminToken,
		successURL: successURL,
		limiter:    limiter,
		logger:     log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	var middleware []gin.HandlerFunc
	if h.limiter != nil {
		middleware = append(middleware, h.limiter.Middleware())
	}

	oauthGroup := router.Group("/oauth", middleware...)
	{
		oauthGroup.GET("/install", h.Install)
		oauthGroup.GET("/callback", h.Callback)
	}

	admin := router.Group("/api/v1", append(middleware, h.requireAdmin)...)
	{
		admin.DELETE("/tenants/:tenant_id", h.Uninstall)
	}
}

func (h *Handler) Install(c *gin.Context) {
	installURL, err := h.manager.GenerateInstallURL("")
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Redirect(http.StatusFound, installURL)
}

func (h *Handler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	if denied := c.Query("error"); denied != "" {
		h.logger.WarnwCtx(ctx, "Installation denied by user", "provider_error", denied)
		h.fail(c, apperrors.ErrAccessDenied)
		return
	}

	state := c.Query("state")
	if err := h.manager.ConsumeState(ctx, state); err != nil {
		if !errors.Is(err, ErrInvalidState) {
			h.handleError(c, err)
			return
		}
		h.logger.WarnwCtx(ctx, "OAuth callback with invalid or reused state")
		h.fail(c, apperrors.ErrInvalidState)
		return
	}

	cred, err := h.manager.HandleCallback(ctx, c.Query("code"), state)
	if err != nil {
		var exErr *OAuthExchangeError
		if errors.As(err, &exErr) {
			h.logger.WarnwCtx(ctx, "OAuth code exchange rejected", "provider_error", exErr.Code)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"ok":            false,
				"error":         apperrors.ErrBadGateway.Code,
				"provider_code": exErr.Code,
			})
			return
		}
		h.handleError(c, err)
		return
	}

	if h.successURL != "" {
		if target, err := url.Parse(h.successURL); err == nil {
			q := target.Query()
			q.Set("tenant_id", cred.TenantID)
			target.RawQuery = q.Encode()
			c.Redirect(http.StatusFound, target.String())
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"tenant_id":   cred.TenantID,
		"tenant_name": cred.TenantName,
	})
}

func (h *Handler) Uninstall(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	ctx := logging.WithTenantID(c.Request.Context(), tenantID)

	report, err := h.manager.HandleUninstall(ctx, tenantID)
	body := gin.H{
		"ok":                 report.OK(),
		"tenant_id":          report.TenantID,
		"credential_revoked": report.CredentialRevoked,
		"mappings_deleted":   report.MappingsDeleted,
	}
	if err != nil {
		body["error"] = "uninstall_incomplete"
		body["failed_steps"] = report.FailedSteps()
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// requireAdmin rejects every request when no admin token is configured.
func (h *Handler) requireAdmin(c *gin.Context) {
	supplied := c.GetHeader(constants.HeaderAdminToken)
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(h.adminToken)) != 1 {
		h.fail(c, apperrors.ErrUnauthorized)
		return
	}
	c.Next()
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	h.fail(c, err)
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
}
