package errors

import (
	"errors"
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
		{"app error wins", New(ErrInternal, http.StatusConflict, "dup"), http.StatusConflict},
		{"invalid input", fmt.Errorf("decode: %w", ErrInvalidInput), http.StatusBadRequest},
		{"dispatch", fmt.Errorf("publish: %w", ErrDispatchFailed), http.StatusServiceUnavailable},
		{"no face", ErrNoFace, http.StatusUnprocessableEntity},
		{"provider", ErrProviderFailed, http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %s", "ktp_image")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "invalid input: field ktp_image", err.Error())
}
