package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("transition failed: %w", NewConflictError("invalid transition", "completed"))
	assert.True(t, IsConflictError(err))
	assert.False(t, IsValidationError(err))

	err = NewDependencyError("stripe", errors.New("connection refused"))
	assert.True(t, IsDependencyError(err))
	assert.Equal(t, "stripe: connection refused", err.Error())
}

func TestConflictErrorMessage(t *testing.T) {
	err := NewConflictError("invalid transition to booked", "rfq")
	assert.Equal(t, "invalid transition to booked (current: rfq)", err.Error())

	err = NewConflictError("window unavailable", "")
	assert.Equal(t, "window unavailable", err.Error())
}
