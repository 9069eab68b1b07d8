package account

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/go-playground/validator/v10"
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "12345678": {}, "123456789": {}, "qwertyuiop": {},
	"iloveyou": {}, "sunshine": {}, "football": {}, "baseball": {}, "welcome1": {},
	"letmein1": {}, "abc12345": {}, "passw0rd": {}, "trustno1": {}, "11111111": {},
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// check validates dto and converts the first failure to a ValidationError.
func (s *Service) check(dto interface{}) error {
	err := s.validate.Struct(dto)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	return apperr.Validation(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "username":
		return "Usernames are 3-50 letters, digits or . _ - characters."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "url":
		return "Enter a valid URL."
	case "e164":
		return "Enter a phone number in international format, e.g. +14155550123."
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	}
	return "Invalid value."
}

// checkPassword applies the password policy: minimum length, not entirely
// numeric, not a common password and not the username or email local part.
func checkPassword(field, password, username, email string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation(field, fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
	}
	numeric := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		return apperr.Validation(field, "This password is entirely numeric.")
	}
	lower := strings.ToLower(password)
	if _, ok := commonPasswords[lower]; ok {
		return apperr.Validation(field, "This password is too common.")
	}
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	if (username != "" && lower == strings.ToLower(username)) || (local != "" && lower == local) {
		return apperr.Validation(field, "The password is too similar to the account details.")
	}
	return nil
}
