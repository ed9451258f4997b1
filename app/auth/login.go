package auth

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func Login(c *gin.Context, d *internal.Deps) {
	var body service.LoginRequest
	if !response.Bind(c, &body) {
		return
	}

	res, err := d.Auth.Login(c.Request.Context(), &body)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
