package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used for input checks.
// validator.Validate is safe for concurrent use.
var validate = validator.New()

// Subscription is a recurring weekly digest delivery registration.
// Subscriptions are never physically deleted; deactivation flips Active
// to false and removes the scheduler trigger.
type Subscription struct {
	// ID is the primary key, assigned by the database on creation.
	ID int64

	// Keyword is the search keyword this subscription covers.
	Keyword string

	// Email is the delivery recipient.
	Email string

	// Active reports whether the subscription still fires.
	Active bool

	// CreatedAt records when the subscription was created.
	CreatedAt time.Time

	// LastSentAt is the time of the last successful delivery, nil if none.
	LastSentAt *time.Time
}

// ValidateKeyword checks that a keyword is non-empty after trimming.
func ValidateKeyword(keyword string) error {
	if NormalizeKeyword(keyword) == "" {
		return NewValidationError("keyword", "keyword must not be empty")
	}
	return nil
}

// ValidateEmail checks that the recipient address is a plausible email.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return NewValidationError("email", "invalid email address")
	}
	return nil
}
