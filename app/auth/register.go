// Package auth contains the handlers mounted under /api/auth
package auth

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func Register(c *gin.Context, d *internal.Deps) {
	var body service.RegisterRequest
	if !response.Bind(c, &body) {
		return
	}

	res, err := d.Auth.Register(c.Request.Context(), &body)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered. Please verify your email.",
		"userId":  res.UserID,
	})
}
