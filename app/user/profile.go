// Package user contains the handlers mounted under /api/users
package user

import (
	"net/http"

	"followpro/api/internal"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
)

func Profile(c *gin.Context, d *internal.Deps) {
	p, err := d.Users.Profile(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func UpdateProfile(c *gin.Context, d *internal.Deps) {
	var body service.UpdateProfileRequest
	if !response.Bind(c, &body) {
		return
	}

	p, err := d.Users.UpdateProfile(c.Request.Context(), c.GetString("userID"), &body)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func ChangePassword(c *gin.Context, d *internal.Deps) {
	var body service.ChangePasswordRequest
	if !response.Bind(c, &body) {
		return
	}

	if err := d.Users.ChangePassword(c.Request.Context(), c.GetString("userID"), &body); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password changed successfully",
	})
}

// All lists every account. Mounted behind the admin guard.
func All(c *gin.Context, d *internal.Deps) {
	users, err := d.Users.ListUsers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}
