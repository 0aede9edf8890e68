package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "explicit_transient", err: NewTransientError(eris.New("503"), 503), want: true},
		{name: "wrapped_transient", err: eris.Wrap(NewTransientError(eris.New("429"), 429), "query cell"), want: true},
		{name: "plain_error", err: eris.New("invalid bounding box"), want: false},
		{name: "io_timeout_string", err: eris.New("read tcp: i/o timeout"), want: true},
		{name: "connection_reset_string", err: eris.New("connection reset by peer"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
