package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"projectflow/backend/internal/repository"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := newError(CodeStaleState, "instance %q moved", "i-1")

	assert.ErrorIs(t, err, ErrStaleState)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrStaleState)
}

func TestFromRepository(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{repository.ErrNotFound, ErrNotFound},
		{repository.ErrStaleState, ErrStaleState},
		{repository.ErrCompleted, ErrConflict},
		{repository.ErrReferenced, ErrConflict},
	}
	for _, tt := range tests {
		err := fromRepository(tt.in, "workflow", "wf-1")
		assert.ErrorIs(t, err, tt.want)
		assert.ErrorIs(t, err, tt.in)
	}

	other := errors.New("connection refused")
	err := fromRepository(other, "workflow", "wf-1")
	assert.ErrorIs(t, err, other)
	var serr *Error
	assert.False(t, errors.As(err, &serr))

	assert.NoError(t, fromRepository(nil, "workflow", "wf-1"))
}
