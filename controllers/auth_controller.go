package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/dto"
	"github.com/princinho/eldercarebackend/middleware"
	"github.com/princinho/eldercarebackend/services"
)

// POST /auth/login
func Login(svc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		res, err := svc.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// POST /auth/register
func Register(svc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		var caller *auth.Identity
		if id, ok := middleware.Identity(c); ok {
			caller = &id
		}

		res, err := svc.Register(c.Request.Context(), services.RegisterInput{
			Email:    body.Email,
			Password: body.Password,
			Name:     body.Name,
			Role:     body.Role,
		}, caller)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// GET /auth/profile
func Profile(svc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.Identity(c)
		if !ok {
			respondError(c, apperrors.ErrUnauthenticated)
			return
		}
		c.JSON(http.StatusOK, svc.Profile(id))
	}
}
