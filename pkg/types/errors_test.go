package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeMatchesItsKind(t *testing.T) {
	tests := []struct {
		code *Code
		kind error
	}{
		{ErrDuplicatePreset, ErrSchema},
		{ErrMissingRequiredField, ErrValidation},
		{ErrCardinalityViolation, ErrValidation},
		{ErrReferenced, ErrConflict},
		{ErrEntityAlreadyDeleted, ErrNotFound},
		{ErrPermissionDenied, ErrForbidden},
		{ErrCompensationFailed, ErrTransport},
		{ErrTransitionRefused, ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.code.Name(), func(t *testing.T) {
			wrapped := fmt.Errorf("creating PRODUCT: %w", tt.code)
			assert.True(t, errors.Is(wrapped, tt.code))
			assert.True(t, errors.Is(wrapped, tt.kind))
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.Equal(t, tt.code, CodeOf(wrapped))
			assert.Same(t, tt.code, LookupCode(tt.code.Name()))
		})
	}
}

func TestKindOfUnknownIsTransport(t *testing.T) {
	assert.Equal(t, ErrTransport, KindOf(errors.New("connection reset")))
	assert.Nil(t, KindOf(nil))
	assert.Nil(t, CodeOf(errors.New("plain")))
}

func TestKindNames(t *testing.T) {
	for _, k := range Kinds {
		name := KindName(k)
		assert.NotEmpty(t, name)
		assert.Equal(t, k, KindByName(name))
	}
	assert.Equal(t, "conflict", KindName(fmt.Errorf("delete: %w", ErrReferenced)))
	assert.Equal(t, "transport", KindName(errors.New("eof")))
	assert.Empty(t, KindName(nil))
	assert.Equal(t, ErrTransport, KindByName("mystery"))
}

func TestValidationErrors(t *testing.T) {
	var empty ValidationErrors
	assert.NoError(t, empty.Err())

	errs := ValidationErrors{
		&FieldError{Code: ErrMissingRequiredField, Field: "price"},
		&FieldError{Code: ErrTypeMismatch, Field: "active", Msg: "string is not a valid boolean value"},
	}
	err := errs.Err()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequiredField))
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "2 validation errors")
	assert.Contains(t, err.Error(), "MissingRequiredField: price")

	var fe *FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "price", fe.Field)
}
