package codec

import (
	"bufio"

	"github.com/Tomwslape5638/vector/event"
)

// Decoder combines a framing rule with a deserializer. A Decoder holds no state between
// calls and can be shared; every call owns its own buffer and framing cursor.
type Decoder struct {
	framing      FramingConfig
	split        bufio.SplitFunc
	deserializer *Deserializer
}

// NewDecoder builds a decoder from configuration
func NewDecoder(framing FramingConfig, deserializer DeserializerConfig, schema event.LogSchema) (*Decoder, error) {
	if err := framing.Validate(); err != nil {
		return nil, err
	}
	d, err := NewDeserializer(deserializer, schema)
	if err != nil {
		return nil, err
	}
	return &Decoder{framing: framing, split: framing.SplitFunc(), deserializer: d}, nil
}

// Framing returns the framing configuration of the decoder
func (d *Decoder) Framing() FramingConfig {
	return d.framing
}

// Decode decodes a complete payload. It consumes frames until the buffer holds no more
// complete frames. On the first error it stops and returns the events decoded so far
// along with a *DecodeError; the rest of the payload is discarded.
func (d *Decoder) Decode(buf []byte) ([]event.Event, error) {
	var events []event.Event
	frame := 0

	for len(buf) > 0 {
		advance, token, err := d.split(buf, true)
		if err != nil {
			return events, framingError(frame, err, advance > 0)
		}
		if advance == 0 {
			break
		}
		buf = buf[advance:]
		if token == nil {
			continue
		}

		parsed, err := d.deserializer.Parse(token)
		if err != nil {
			return events, parseError(frame, err)
		}
		events = append(events, parsed...)
		frame++
	}
	return events, nil
}
