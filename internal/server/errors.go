package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/rollcall/internal/api"
	"github.com/roach88/rollcall/internal/attendance"
)

// CodeUnauthorized is returned when a bearer token is missing or invalid.
const CodeUnauthorized attendance.ErrorCode = "UNAUTHORIZED"

// CodeInternal is returned for failures that carry no typed code.
const CodeInternal attendance.ErrorCode = "INTERNAL"

// statusFor maps an error to its HTTP status.
//
// Transport errors are 503 unless upstream is set, in which case the failure
// came from a service we call (the roster source) and is reported as 502.
func statusFor(err error, upstream bool) int {
	switch attendance.CodeOf(err) {
	case attendance.CodeValidation:
		return http.StatusBadRequest
	case attendance.CodeNotFound:
		return http.StatusNotFound
	case attendance.CodeTransport:
		if upstream {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse.
func writeError(c *gin.Context, err error, upstream bool) {
	status := statusFor(err, upstream)

	var typed *attendance.Error
	if !errors.As(err, &typed) {
		typed = &attendance.Error{Code: CodeInternal, Message: err.Error()}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: typed})
}

// validationError converts validator output to the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return attendance.Invalid(field, "failed %q check", fe.Tag())
	}
	return attendance.Invalid("body", "%v", err)
}
