package auth

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func ForgotPassword(c *gin.Context, d *internal.Deps) {
	var body service.ForgotPasswordRequest
	if !response.Bind(c, &body) {
		return
	}

	res, err := d.Auth.ForgotPassword(c.Request.Context(), &body)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset OTP sent to email",
		"userId":  res.UserID,
	})
}

func ResetPassword(c *gin.Context, d *internal.Deps) {
	var body service.ResetPasswordRequest
	if !response.Bind(c, &body) {
		return
	}

	if err := d.Auth.ResetPassword(c.Request.Context(), &body); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset successfully",
	})
}
