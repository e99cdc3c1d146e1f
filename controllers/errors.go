package controllers

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/princinho/eldercarebackend/apperrors"
)

// respondError maps err to its status and public message. Server-side
// failures are attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}

// bindError turns a gin binding failure into a validation error with a
// readable message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation("invalid request body")
	}

	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperrors.Validation(field + " is required")
	case "email":
		return apperrors.Validation(field + " must be a valid email address")
	case "min":
		return apperrors.Validation(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "oneof":
		return apperrors.Validation(fmt.Sprintf("%s must be one of %s", field, strings.Join(uniqueUpper(strings.Fields(fe.Param())), ", ")))
	case "url":
		return apperrors.Validation(field + " must be a valid URL")
	default:
		return apperrors.Validation(field + " is invalid")
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func uniqueUpper(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(v)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
