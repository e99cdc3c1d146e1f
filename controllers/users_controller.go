package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/auth"
	"github.com/princinho/eldercarebackend/dto"
	"github.com/princinho/eldercarebackend/middleware"
	"github.com/princinho/eldercarebackend/models"
	"github.com/princinho/eldercarebackend/services"
	"github.com/princinho/eldercarebackend/utils"
)

// POST /users
func CreateUser(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.CreateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		var caller *auth.Identity
		if id, ok := middleware.Identity(c); ok {
			caller = &id
		}

		user, err := svc.Create(c.Request.Context(), services.CreateUserInput{
			Email:    body.Email,
			Password: body.Password,
			Name:     body.Name,
			Role:     body.Role,
			Avatar:   body.Avatar,
		}, caller)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// GET /users?search=&page=&limit=
func GetUsers(svc *services.UserService, limits utils.QueryLimits) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q dto.ListUsersQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, bindError(err))
			return
		}
		skip, limit := limits.Paginate(q.Page, q.Limit)

		users, total, err := svc.List(c.Request.Context(), models.UserFilter{
			Search: q.Search,
			Skip:   skip,
			Limit:  limit,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("X-Total-Count", strconv.FormatInt(total, 10))
		c.JSON(http.StatusOK, users)
	}
}

// GET /users/:id
func GetUser(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// PATCH /users/:id
func UpdateUser(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.UpdateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		user, err := svc.Update(c.Request.Context(), c.Param("id"), services.UpdateUserInput{
			Email:    body.Email,
			Password: body.Password,
			Name:     body.Name,
			Role:     body.Role,
			Avatar:   body.Avatar,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// DELETE /users/:id
func DeleteUser(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := svc.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func callerID(c *gin.Context) (string, bool) {
	id, ok := middleware.Identity(c)
	if !ok || id.UserID == "" {
		respondError(c, apperrors.ErrUnauthenticated)
		return "", false
	}
	return id.UserID, true
}

// GET /users/profile
func GetMyProfile(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := callerID(c)
		if !ok {
			return
		}
		user, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// PATCH /users/profile
func UpdateMyProfile(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := callerID(c)
		if !ok {
			return
		}
		var body dto.UpdateProfileDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		user, err := svc.UpdateProfile(c.Request.Context(), id, services.UpdateProfileInput{
			Name:   body.Name,
			Avatar: body.Avatar,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// POST /users/profile/password
func ChangeMyPassword(svc *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := callerID(c)
		if !ok {
			return
		}
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, bindError(err))
			return
		}

		if err := svc.ChangePassword(c.Request.Context(), id, body.CurrentPassword, body.NewPassword); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /users/profile/avatar (multipart field "avatar")
func UploadMyAvatar(svc *services.UserService, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := callerID(c)
		if !ok {
			return
		}
		if maxBytes > 0 {
			// Leave room for the multipart envelope around the file.
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)
		}

		fh, err := c.FormFile("avatar")
		if err != nil {
			respondError(c, apperrors.Validation("avatar file is required"))
			return
		}
		file, err := fh.Open()
		if err != nil {
			respondError(c, apperrors.Validation("could not read uploaded file"))
			return
		}
		defer file.Close()

		user, err := svc.UploadAvatar(c.Request.Context(), id, fh.Filename, fh.Size, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
