package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 80
	emailMaxLength    = 120
	// bcrypt only reads the first 72 bytes of a secret
	passwordMaxLength = 72
)

func validateRegister(r RegisterRequest, minPassword int) error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(usernameMinLength, usernameMaxLength)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, emailMaxLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPassword, passwordMaxLength)),
	))
}

func validateLogin(r LoginRequest) error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, emailMaxLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, passwordMaxLength)),
	))
}

func validateUpdate(r UpdateAccountRequest, minPassword int) error {
	errs := validation.Errors{}
	if r.Email != nil {
		if err := validation.Validate(*r.Email, validation.Required, validation.Length(3, emailMaxLength), is.Email); err != nil {
			errs["email"] = err
		}
	}
	if r.Password != nil {
		if err := validation.Validate(*r.Password, validation.Required, validation.Length(minPassword, passwordMaxLength)); err != nil {
			errs["password"] = err
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return asValidationError(errs)
}

// asValidationError turns ozzo field errors into a ValidationError.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	var errs validation.Errors
	if errors.As(err, &errs) {
		for field, ferr := range errs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	} else {
		fields["_"] = err.Error()
	}

	return NewValidationError(fields, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
