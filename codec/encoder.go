package codec

import (
	"github.com/Tomwslape5638/vector/event"
)

// Encoder combines a serializer with the framing applied between frames
type Encoder struct {
	framing    FramingConfig
	serializer *Serializer
}

// NewEncoder builds an encoder from configuration
func NewEncoder(framing FramingConfig, serializer SerializerConfig, schema event.LogSchema) (*Encoder, error) {
	if err := framing.Validate(); err != nil {
		return nil, err
	}
	s, err := NewSerializer(serializer, schema)
	if err != nil {
		return nil, err
	}
	return &Encoder{framing: framing, serializer: s}, nil
}

// Encode serializes a single event without framing, for transports that carry one
// message per event.
func (e *Encoder) Encode(ev event.Event) ([]byte, error) {
	return e.serializer.Serialize(ev)
}

// EncodeBatch serializes events into one payload with the framing rule applied, such that
// a Decoder with the matching framing and deserializer yields the same events.
func (e *Encoder) EncodeBatch(events []event.Event) ([]byte, error) {
	var buf []byte
	for _, ev := range events {
		frame, err := e.serializer.Serialize(ev)
		if err != nil {
			return nil, err
		}
		if buf, err = e.framing.appendFrame(buf, frame); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
