package authflow

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile is the application-level user record, keyed 1:1 by Identity.ID.
// It is created after signup succeeds; there is a window where an Identity
// exists and the Profile does not.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            string     `bun:"id,pk" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Handle        string     `bun:"handle,notnull,unique" json:"handle,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Bio           string     `bun:"bio" json:"bio,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ResetStep tracks progress through the two-step password reset flow.
type ResetStep = string

const (
	// ResetStepRequest shows the email form
	ResetStepRequest ResetStep = "show-reset"
	// ResetStepEmailSent means the recovery notification went out
	ResetStepEmailSent ResetStep = "email-sent"
	// ResetStepChangePassword means the user followed the recovery link
	ResetStepChangePassword ResetStep = "change-password"
	// ResetStepDone means the new password was accepted
	ResetStepDone ResetStep = "password-changed"
)

// Result is the outcome handed back to the UI layer for every operation.
// Provider errors never escape raw; they are converted into a Result.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func okResult(message string) Result {
	return Result{Success: true, Message: message}
}

func failResult(message string) Result {
	return Result{Success: false, Message: message}
}
