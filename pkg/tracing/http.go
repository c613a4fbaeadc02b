package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"hookbridge/pkg/logging"
)

// GinMiddleware starts a server span per request and copies the trace id
// into the logging context.
func GinMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName),
		func(c *gin.Context) {
			if traceID := TraceID(c.Request.Context()); traceID != "" {
				c.Request = c.Request.WithContext(logging.WithTraceID(c.Request.Context(), traceID))
			}
			c.Next()
		},
	}
}

// InjectHTTPHeaders propagates the active trace to an outbound request.
func InjectHTTPHeaders(req *http.Request) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
