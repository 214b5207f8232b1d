package codec

import (
	"fmt"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/event"
)

// Serializer turns one event into one frame
type Serializer struct {
	codec  SerializerCodec
	schema event.LogSchema
}

// NewSerializer builds the serializer selected by cfg
func NewSerializer(cfg SerializerConfig, schema event.LogSchema) (*Serializer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Serializer{codec: cfg.Codec, schema: schema}, nil
}

// Serialize encodes e
func (s *Serializer) Serialize(e event.Event) ([]byte, error) {
	switch s.codec {
	case SerializerJSON:
		return s.serializeJSON(e)
	case SerializerNativeJSON:
		return jsonAPI.Marshal(e.ToEnvelope())
	case SerializerNative:
		return MarshalNative(e.ToEnvelope())
	default:
		return s.serializeText(e)
	}
}

func (s *Serializer) serializeJSON(e event.Event) ([]byte, error) {
	switch e.Kind() {
	case event.KindMetric:
		return jsonAPI.Marshal(e.Metric())
	case event.KindTrace:
		return jsonAPI.Marshal(e.Trace().Fields())
	default:
		return jsonAPI.Marshal(e.Log().Fields())
	}
}

// serializeText writes the message field of a log
func (s *Serializer) serializeText(e event.Event) ([]byte, error) {
	log := e.Log()
	if log == nil {
		return nil, fmt.Errorf("%w: text encoding supports logs only, got %s", errors.ErrInvalidData, e.Kind())
	}

	msg, ok := log.Get(s.schema.MessageKey)
	if !ok {
		return []byte{}, nil
	}
	switch v := msg.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}
