// Package response writes error responses in the one shape every route uses
package response

import (
	"errors"
	"net/http"

	"followpro/api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status maps an error kind to its HTTP status code
func Status(k service.ErrorKind) int {
	switch k {
	case service.KindValidation,
		service.KindDuplicateEmail,
		service.KindInvalidCredentials,
		service.KindEmailNotVerified,
		service.KindOtpInvalid:
		return http.StatusBadRequest
	case service.KindUserNotFound:
		return http.StatusNotFound
	case service.KindInvalidRefreshToken, service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// Error aborts the request with the JSON body for err. Anything that isn't an
// *service.AuthError is reported as an internal error.
func Error(c *gin.Context, err error) {
	requestID := c.GetString("requestID")

	var ae *service.AuthError
	if !errors.As(err, &ae) {
		ae = &service.AuthError{Kind: service.KindInternal, Message: service.ErrInternal.Message, Err: err}
	}

	status := Status(ae.Kind)

	body := gin.H{
		"error":     ae.Message,
		"requestID": requestID,
	}

	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}

	if ae.UserID != "" {
		body["userId"] = ae.UserID
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.Error(err),
			zap.String("kind", ae.Kind.String()),
			zap.String("path", c.FullPath()),
			zap.String("requestID", requestID))
	} else {
		zap.L().Debug("Request rejected",
			zap.String("kind", ae.Kind.String()),
			zap.String("path", c.FullPath()),
			zap.String("requestID", requestID))
	}

	c.AbortWithStatusJSON(status, body)
}
