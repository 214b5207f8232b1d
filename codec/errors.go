package codec

import (
	"fmt"

	"github.com/Tomwslape5638/vector/errors"
)

// Stage names the decoding step that failed
type Stage string

// Decoding stages
const (
	StageFraming       Stage = "framing"
	StageDeserializing Stage = "deserializing"
)

// DecodeError describes why decoding of a payload stopped.
type DecodeError struct {
	Stage Stage
	// Frame is the zero-based index of the frame that failed
	Frame int
	Err   error
	// continuable marks failures that are confined to one frame
	continuable bool
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: %s frame %d: %v", e.Stage, e.Frame, e.Err)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CanContinue reports whether the failure was confined to a single frame, so a more
// lenient caller could skip that frame and keep going.
func (e *DecodeError) CanContinue() bool {
	return e.continuable
}

func framingError(frame int, err error, continuable bool) *DecodeError {
	return &DecodeError{Stage: StageFraming, Frame: frame, Err: err, continuable: continuable}
}

func parseError(frame int, err error) *DecodeError {
	return &DecodeError{
		Stage:       StageDeserializing,
		Frame:       frame,
		Err:         fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
		continuable: true,
	}
}
