package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("thread: %w", ErrNotFound), http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("not a participant: %w", ErrForbidden), http.StatusForbidden},
		{"field error", Invalid("content", "must not be empty"), http.StatusBadRequest},
		{"transient", Transient(errors.New("connection refused")), http.StatusServiceUnavailable},
		{"conflict", Conflict("client_message_id was already used"), http.StatusConflict},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"app error code wins", New(http.StatusTeapot, "teapot", ErrNotFound), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}

func TestFieldError(t *testing.T) {
	err := fmt.Errorf("append message: %w", Invalid("content", "must not be empty"))

	var fe *FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "content", fe.Field)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := Transient(cause)

	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, Transient(err))
	assert.Nil(t, Transient(nil))
}
