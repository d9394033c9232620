package authflow

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// PasswordMinLength is the minimum accepted password length.
var PasswordMinLength = 6

// PhoneDefaultRegion is the region used to parse phone numbers without a
// country prefix.
var PhoneDefaultRegion = "US"

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			validation.By(ValidateEmailAddress()),
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// SignupRequest is the signup form payload.
type SignupRequest struct {
	Name            string `form:"name" json:"name"`
	Handle          string `form:"handle" json:"handle"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Handle, validation.Required, validation.Length(2, 60)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), validation.By(ValidateEmailAddress())),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber(PhoneDefaultRegion))),
		validation.Field(&r.Password, validation.Required, validation.By(ValidatePasswordStrength())),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidatePasswordMatch(r.Password)),
		),
	)
}

// Metadata returns the signup attributes forwarded to the identity provider.
func (r SignupRequest) Metadata() map[string]any {
	meta := map[string]any{
		"name":   r.Name,
		"handle": r.Handle,
	}
	if r.Phone != "" {
		meta["phone"] = r.Phone
	}
	return meta
}

// ResetPasswordRequest starts the password recovery flow.
type ResetPasswordRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.By(ValidateEmailAddress())),
	)
}

// ConfirmPasswordRequest finalizes the password recovery flow.
type ConfirmPasswordRequest struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate rejects mismatched confirmations before any network call.
func (r ConfirmPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.By(ValidatePasswordStrength())),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidatePasswordMatch(r.Password)),
		),
	)
}

// ValidateEmailAddress builds a rule surfacing ErrInvalidEmail for values
// that do not parse as an email address. Empty values pass; Required covers
// presence.
func ValidateEmailAddress() validation.RuleFunc {
	return func(value interface{}) error {
		if err := is.Email.Validate(value); err != nil {
			return ErrInvalidEmail
		}
		return nil
	}
}

// ValidatePasswordStrength builds a rule enforcing the password policy,
// surfacing ErrWeakPassword on failure.
func ValidatePasswordStrength() validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		if s == "" {
			return nil
		}
		if len(s) < PasswordMinLength || len(s) > 100 {
			return ErrWeakPassword
		}
		return nil
	}
}

// ValidatePasswordMatch builds a rule asserting the confirmation equals the
// chosen password, surfacing ErrPasswordMismatch otherwise.
func ValidatePasswordMatch(expected string) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		if s != expected {
			return ErrPasswordMismatch
		}
		return nil
	}
}

// ValidatePhoneNumber builds a rule for optional phone fields. Empty values
// pass; anything else must parse as a valid number for the given region.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return fmt.Errorf("is not a valid phone number")
		}
		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("is not a valid phone number")
		}
		return nil
	}
}
