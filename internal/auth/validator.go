package auth

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"finker/internal/errs"
)

var validate = validator.New()

type RegisterRequest struct {
	Username     string `validate:"required,min=3,max=32"`
	Password     string `validate:"required,min=6,max=72"`
	Confirmation string `validate:"required,eqfield=Password"`
}

func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if !isPasswordComplex(req.Password) {
		return errs.ErrInvalidPassword
	}
	return nil
}

// isPasswordComplex requires a lowercase letter, an uppercase letter, a digit
// and a special character.
func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
