package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// ErrorBody is the JSON shape of every API error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type          apperrors.ErrorType `json:"type"`
	Code          string              `json:"code"`
	Message       string              `json:"message"`
	CorrelationID string              `json:"correlation_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error and recovers
// panics. Server errors are reported to Sentry; without an initialized client
// the capture is a no-op.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
					"operation":   "http_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
				}).Error("Panic recovered in HTTP handler")

				hub := hubFor(c)
				hub.RecoverWithContext(c.Request.Context(), r)

				writeError(c, apperrors.NewInternalError(fmt.Sprintf("panic: %v", r), nil), false)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err, true)
	}
}

func hubFor(c *gin.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(c.Request.Context())
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.Scope().SetTag("http.method", c.Request.Method)
	hub.Scope().SetTag("http.route", c.FullPath())
	return hub
}

// writeError converts err to an AppError and writes the response. Unknown
// errors become internal errors so their text never reaches the client.
func writeError(c *gin.Context, err error, report bool) {
	ctx := c.Request.Context()
	correlationID := telemetry.GetCorrelationID(ctx)

	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.NewInternalError("An unexpected error occurred", err)
	}
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(correlationID)
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":  "http_error",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"status":     status,
	})
	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}

	if status >= http.StatusInternalServerError {
		logger.Error(appErr.Message)
		if report {
			hub := hubFor(c)
			hub.Scope().SetTag("error_type", string(appErr.Type))
			hub.Scope().SetTag("correlation_id", appErr.CorrelationID)
			hub.CaptureException(err)
		}
	} else {
		logger.Warn(appErr.Message)
	}

	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{
		Type:          appErr.Type,
		Code:          appErr.Code,
		Message:       appErr.Message,
		CorrelationID: appErr.CorrelationID,
	}})
}
