package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"pong timeout", ErrPongTimeout, true},
		{"unexpected status", fmt.Errorf("got 503: %w", ErrUnexpectedStatus), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"connection refused text", fmt.Errorf("dial tcp: connection refused"), true},
		{"invalid data", ErrInvalidData, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("timeout")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsFatalAndInvalid(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrUnknownType))
	assert.False(t, IsFatal(ErrConnectionLost))
	assert.False(t, IsFatal(nil))

	assert.True(t, IsInvalid(ErrParsingFailed))
	assert.True(t, IsInvalid(fmt.Errorf("frame: %w", ErrFrameTooLong)))
	assert.False(t, IsInvalid(ErrConnectionTimeout))
	assert.False(t, IsInvalid(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))

	// explicit class beats the sentinel underneath
	wrapped := WrapTransient(ErrInvalidConfig, "Sink", "Connect", "dial")
	assert.Equal(t, ErrorTransient, Classify(wrapped))
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, Wrap(nil, "A", "B", "c"))
	assert.Nil(t, WrapTransient(nil, "A", "B", "c"))
	assert.Nil(t, WrapInvalid(nil, "A", "B", "c"))
	assert.Nil(t, WrapFatal(nil, "A", "B", "c"))

	err := Wrap(base, "Scraper", "scrape", "request")
	assert.EqualError(t, err, "Scraper.scrape: request failed: boom")
	assert.ErrorIs(t, err, base)

	err = WrapInvalid(base, "Config", "Validate", "endpoint parse")
	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Config", ce.Component)
	assert.Equal(t, "Validate", ce.Operation)
	assert.ErrorIs(t, err, base)
	assert.True(t, IsInvalid(err))

	err = WrapFatal(base, "Sink", "New", "tls")
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
}
