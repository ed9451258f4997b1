package auth

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/model"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func VerifyOTP(c *gin.Context, d *internal.Deps) {
	var body service.VerifyOTPRequest
	if !response.Bind(c, &body) {
		return
	}

	if err := d.Auth.VerifyOTP(c.Request.Context(), &body); err != nil {
		response.Error(c, err)
		return
	}

	msg := "Email verified successfully"
	if body.Type == model.PurposePasswordReset {
		msg = "Code verified successfully"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}
