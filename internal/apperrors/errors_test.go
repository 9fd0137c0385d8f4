package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: Validation("action", "unknown action"), want: KindValidation},
		{name: "wrapped conflict", err: fmt.Errorf("reply: %w", StateConflict("n1", "expired", "accept")), want: KindStateConflict},
		{name: "foreign error", err: errors.New("connection reset"), want: KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("abc"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
}

func TestStateConflictCarriesContext(t *testing.T) {
	err := StateConflict("n1", "cancelled", "finalize")
	assert.Equal(t, "cancelled", err.CurrentState)
	assert.Equal(t, "finalize", err.RequestedAction)
	assert.Contains(t, err.Error(), "state=cancelled")
}

func TestFromWrapsForeignErrors(t *testing.T) {
	cause := errors.New("pool closed")
	e := From(cause)
	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, From(nil))
}
