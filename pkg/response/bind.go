package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Bind decodes the JSON body into obj. On failure it writes the error
// response and returns false.
func Bind(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	requestID := c.GetString("requestID")

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":     "Request body size exceeds limit",
			"requestID": requestID,
		})
		return false
	}

	zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":     "Invalid request body",
		"requestID": requestID,
	})
	return false
}
