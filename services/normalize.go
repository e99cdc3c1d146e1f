package services

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const minPasswordLength = 6

// validate applies the same tag rules the request DTOs use, for callers that
// do not come through gin binding (seed-admin, tests).
var validate = validator.New()

// EmailNormalizer produces the canonical form under which emails are stored
// and looked up.
type EmailNormalizer struct {
	CaseSensitive bool
}

func (n EmailNormalizer) Normalize(email string) string {
	email = norm.NFC.String(strings.TrimSpace(email))
	if n.CaseSensitive {
		return email
	}
	// Casers keep state, so one is built per call.
	return cases.Lower(language.Und).String(email)
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
