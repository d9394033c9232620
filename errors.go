package authflow

import (
	"github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	textCodeNetworkFailure        = "NETWORK_FAILURE"
	textCodeDuplicateSubscription = "DUPLICATE_SUBSCRIPTION"
	textCodeMalformedDeepLink     = "MALFORMED_DEEP_LINK"
	textCodeWeakPassword          = "WEAK_PASSWORD"
	textCodePasswordMismatch      = "PASSWORD_MISMATCH"
	textCodeInvalidEmail          = "INVALID_EMAIL_FORMAT"
)

// ErrInvalidCredentials is returned when the provider rejects an email/password pair.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrNetworkFailure is a transport-level failure talking to the identity
// provider or the profile store. Retryable; polling swallows it per tick.
var ErrNetworkFailure = errors.New("backend unreachable", errors.CategoryOperation).
	WithTextCode(textCodeNetworkFailure).
	WithCode(errors.CodeInternal)

// ErrDuplicateSubscription is a programmer error: the auth event listener was
// attached twice.
var ErrDuplicateSubscription = errors.New("auth event listener already attached", errors.CategoryConflict).
	WithTextCode(textCodeDuplicateSubscription).
	WithCode(errors.CodeConflict)

// ErrMalformedDeepLink flags missing or invalid token parameters on an
// incoming verification URL. Recoverable; routes to the public entry screen.
var ErrMalformedDeepLink = errors.New("deep link is missing token parameters", errors.CategoryBadInput).
	WithTextCode(textCodeMalformedDeepLink).
	WithCode(errors.CodeBadRequest)

// ErrWeakPassword is a client-side validation failure, checked before any network call.
var ErrWeakPassword = errors.New("password does not meet minimum requirements", errors.CategoryValidation).
	WithTextCode(textCodeWeakPassword).
	WithCode(errors.CodeBadRequest)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = errors.New("passwords do not match", errors.CategoryValidation).
	WithTextCode(textCodePasswordMismatch).
	WithCode(errors.CodeBadRequest)

// ErrInvalidEmail is returned for inputs that are not valid email addresses.
var ErrInvalidEmail = errors.New("invalid email address", errors.CategoryValidation).
	WithTextCode(textCodeInvalidEmail).
	WithCode(errors.CodeBadRequest)

// IsInvalidCredentials checks for provider credential rejections.
func IsInvalidCredentials(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == textCodeInvalidCredentials
	}

	return false
}

// IsNetworkFailure checks for transport-level failures.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == textCodeNetworkFailure
	}

	return false
}

// IsMalformedDeepLink checks for deep link parse failures.
func IsMalformedDeepLink(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == textCodeMalformedDeepLink
	}

	return false
}

// WrapTransport converts a raw transport error into an ErrNetworkFailure clone
// that keeps the cause for logging.
func WrapTransport(err error, msg string) error {
	if err == nil {
		return nil
	}

	clone := ErrNetworkFailure.Clone()
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"cause":   err.Error(),
		"context": msg,
	})
}
