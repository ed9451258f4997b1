package auth

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func RefreshToken(c *gin.Context, d *internal.Deps) {
	var body service.RefreshTokenRequest
	if !response.Bind(c, &body) {
		return
	}

	pair, err := d.Auth.RefreshToken(c.Request.Context(), &body)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func ResendOTP(c *gin.Context, d *internal.Deps) {
	var body service.ResendOTPRequest
	if !response.Bind(c, &body) {
		return
	}

	if err := d.Auth.ResendOTP(c.Request.Context(), &body); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "OTP sent successfully",
	})
}
