package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Tomwslape5638/vector/errors"
)

const lengthPrefixSize = 4

// SplitFunc returns the framing rule as a bufio.SplitFunc. Empty frames are skipped.
// An oversized frame yields an error wrapping errors.ErrFrameTooLong.
func (f FramingConfig) SplitFunc() bufio.SplitFunc {
	maxLength := f.maxLength()

	switch f.Method {
	case FramingNewlineDelimited:
		return delimitedSplit('\n', maxLength, true)
	case FramingCharacterDelimited:
		return delimitedSplit(byte(f.CharacterDelimited.Delimiter), maxLength, false)
	case FramingLengthDelimited:
		return lengthDelimitedSplit(maxLength)
	default:
		return messageSplit
	}
}

// messageSplit yields the whole input as one frame once the input is complete
func messageSplit(data []byte, atEOF bool) (int, []byte, error) {
	if !atEOF {
		return 0, nil, nil
	}
	if len(data) == 0 {
		return 0, nil, nil
	}
	return len(data), data, nil
}

func delimitedSplit(delimiter byte, maxLength int, trimCR bool) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		advance, frame := 0, []byte(nil)
		if i := bytes.IndexByte(data, delimiter); i >= 0 {
			advance, frame = i+1, data[:i]
		} else if atEOF {
			// The payload is complete: the unterminated tail is the last frame
			advance, frame = len(data), data
		} else {
			if maxLength > 0 && len(data) > maxLength {
				return 0, nil, tooLong(len(data), maxLength)
			}
			return 0, nil, nil
		}

		if trimCR && len(frame) > 0 && frame[len(frame)-1] == '\r' {
			frame = frame[:len(frame)-1]
		}
		if maxLength > 0 && len(frame) > maxLength {
			return advance, nil, tooLong(len(frame), maxLength)
		}
		if len(frame) == 0 {
			return advance, nil, nil
		}
		return advance, frame, nil
	}
}

func lengthDelimitedSplit(maxLength int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if len(data) < lengthPrefixSize {
			if atEOF && len(data) > 0 {
				return 0, nil, fmt.Errorf("%w: truncated length prefix", errors.ErrInvalidData)
			}
			return 0, nil, nil
		}

		size := int(binary.BigEndian.Uint32(data[:lengthPrefixSize]))
		if maxLength > 0 && size > maxLength {
			return 0, nil, tooLong(size, maxLength)
		}

		end := lengthPrefixSize + size
		if len(data) < end {
			if atEOF {
				return 0, nil, fmt.Errorf("%w: truncated frame, want %d bytes, have %d",
					errors.ErrInvalidData, size, len(data)-lengthPrefixSize)
			}
			return 0, nil, nil
		}
		if size == 0 {
			return end, nil, nil
		}
		return end, data[lengthPrefixSize:end], nil
	}
}

func tooLong(size, maxLength int) error {
	return fmt.Errorf("%w: %d bytes, limit %d", errors.ErrFrameTooLong, size, maxLength)
}

// appendFrame writes one encoded frame to buf following the framing rule
func (f FramingConfig) appendFrame(buf, frame []byte) ([]byte, error) {
	if maxLength := f.maxLength(); maxLength > 0 && len(frame) > maxLength {
		return buf, tooLong(len(frame), maxLength)
	}

	switch f.Method {
	case FramingNewlineDelimited:
		return appendDelimited(buf, frame, '\n')
	case FramingCharacterDelimited:
		return appendDelimited(buf, frame, byte(f.CharacterDelimited.Delimiter))
	case FramingLengthDelimited:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(frame)))
		return append(buf, frame...), nil
	default:
		if len(buf) > 0 {
			return buf, fmt.Errorf("%w: message based framing holds a single frame", errors.ErrInvalidData)
		}
		return append(buf, frame...), nil
	}
}

func appendDelimited(buf, frame []byte, delimiter byte) ([]byte, error) {
	if bytes.IndexByte(frame, delimiter) >= 0 {
		return buf, fmt.Errorf("%w: encoded frame contains the delimiter %q", errors.ErrInvalidData, delimiter)
	}
	buf = append(buf, frame...)
	return append(buf, delimiter), nil
}
