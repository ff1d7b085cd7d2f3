package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("remove x: %w", ErrImageNotFound), http.StatusNotFound},
		{"duplicate", fmt.Errorf("add x: %w", ErrImageExists), http.StatusConflict},
		{"dimension", ErrDimensionMismatch, http.StatusBadRequest},
		{"unreachable", ErrUnreachableImage, http.StatusBadRequest},
		{"encoder", ErrEncoderUnavailable, http.StatusServiceUnavailable},
		{"app error", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %d out of range", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: limit -1 out of range", err.Error())
	assert.True(t, IsPrecondition(err))
}
