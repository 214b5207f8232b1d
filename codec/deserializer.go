package codec

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
)

// Deserializer turns one frame into zero or more events
type Deserializer struct {
	codec  DeserializerCodec
	schema event.LogSchema
}

// NewDeserializer builds the deserializer selected by cfg
func NewDeserializer(cfg DeserializerConfig, schema event.LogSchema) (*Deserializer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Deserializer{codec: cfg.Codec, schema: schema}, nil
}

// Parse deserializes a frame
func (d *Deserializer) Parse(frame []byte) ([]event.Event, error) {
	switch d.codec {
	case DeserializerJSON:
		return d.parseJSON(validUTF8(frame))
	case DeserializerNativeJSON:
		return d.parseNativeJSON(validUTF8(frame))
	case DeserializerNative:
		return d.parseNative(frame)
	default:
		return d.parseBytes(validUTF8(frame))
	}
}

func (d *Deserializer) parseBytes(frame []byte) ([]event.Event, error) {
	log := event.NewLog(nil)
	log.Insert(d.schema.MessageKey, string(frame))
	return []event.Event{event.FromLog(log)}, nil
}

// parseJSON accepts an object (one log) or an array of objects (one log each)
func (d *Deserializer) parseJSON(frame []byte) ([]event.Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, nil
	}

	var value any
	if err := jsonAPI.Unmarshal(frame, &value); err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case map[string]any:
		return []event.Event{event.FromLog(event.NewLog(v))}, nil
	case []any:
		events := make([]event.Event, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: array element %d is %T, want object", errors.ErrInvalidData, i, item)
			}
			events = append(events, event.FromLog(event.NewLog(obj)))
		}
		return events, nil
	default:
		return nil, fmt.Errorf("%w: JSON value is %T, want object or array", errors.ErrInvalidData, value)
	}
}

func (d *Deserializer) parseNativeJSON(frame []byte) ([]event.Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, nil
	}

	var envelopes []event.Envelope
	if frame[0] == '[' {
		if err := jsonAPI.Unmarshal(frame, &envelopes); err != nil {
			return nil, err
		}
	} else {
		var env event.Envelope
		if err := jsonAPI.Unmarshal(frame, &env); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return fromEnvelopes(envelopes)
}

func (d *Deserializer) parseNative(frame []byte) ([]event.Event, error) {
	var env event.Envelope
	if err := UnmarshalNative(frame, &env); err != nil {
		return nil, err
	}
	return fromEnvelopes([]event.Envelope{env})
}

func fromEnvelopes(envelopes []event.Envelope) ([]event.Event, error) {
	events := make([]event.Event, 0, len(envelopes))
	for _, env := range envelopes {
		e, err := env.Event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// validUTF8 replaces invalid UTF-8 sequences so text codecs never see broken input
func validUTF8(frame []byte) []byte {
	if utf8.Valid(frame) {
		return frame
	}
	return bytes.ToValidUTF8(frame, []byte("�"))
}
