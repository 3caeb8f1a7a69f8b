package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKeyword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "LLM", "llm"},
		{"trims", "  quantum computing  ", "quantum computing"},
		{"collapses whitespace", "retrieval\t augmented\n generation", "retrieval augmented generation"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeKeyword(tt.input))
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  Attention Is\n  All You Need "
	assert.Equal(t, "Attention Is All You Need", NormalizeWhitespace(in))
}

func TestValidateKeyword(t *testing.T) {
	assert.NoError(t, ValidateKeyword("LLM"))

	err := ValidateKeyword("   ")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("a@b.com"))

	for _, bad := range []string{"", "not-an-email", "missing@tld", "@example.com"} {
		err := ValidateEmail(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := NewNotFoundError("subscription", "42")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "subscription")
	})

	t.Run("already exists", func(t *testing.T) {
		err := NewAlreadyExistsError("subscription", "llm/a@b.com")
		assert.True(t, errors.Is(err, ErrAlreadyExists))
	})

	t.Run("config", func(t *testing.T) {
		err := NewConfigError("SENDER_EMAIL")
		assert.True(t, errors.Is(err, ErrMisconfigured))
		assert.Contains(t, err.Error(), "SENDER_EMAIL")
	})

	t.Run("external API wraps cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewExternalAPIError("arXiv", 0, "request failed", cause)
		assert.True(t, errors.Is(err, cause))
	})
}

func TestIsValidDeliveryStatus(t *testing.T) {
	assert.True(t, IsValidDeliveryStatus(DeliverySuccess))
	assert.True(t, IsValidDeliveryStatus(DeliveryFailed))
	assert.False(t, IsValidDeliveryStatus(DeliveryStatus("pending")))
}
