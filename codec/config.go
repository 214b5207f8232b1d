package codec

import (
	"encoding/json"
	"fmt"

	"github.com/Tomwslape5638/vector/errors"
)

// FramingMethod selects how a byte stream is split into frames
type FramingMethod string

// Framing methods
const (
	// FramingBytes treats the whole payload as one frame (message based)
	FramingBytes              FramingMethod = "bytes"
	FramingNewlineDelimited   FramingMethod = "newline_delimited"
	FramingCharacterDelimited FramingMethod = "character_delimited"
	// FramingLengthDelimited prefixes every frame with its length as a 4-byte big-endian integer
	FramingLengthDelimited FramingMethod = "length_delimited"
)

// NewlineDelimitedOptions configures newline framing
type NewlineDelimitedOptions struct {
	// MaxLength bounds a frame in bytes; 0 means unbounded
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// CharacterDelimitedOptions configures framing on an arbitrary delimiter byte
type CharacterDelimitedOptions struct {
	Delimiter Delimiter `json:"delimiter" yaml:"delimiter"`
	MaxLength int       `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// Delimiter is a single delimiter byte. It is written as a one-character string in
// configuration files; a number is accepted too.
type Delimiter byte

// MarshalJSON implements json.Marshaler
func (d Delimiter) MarshalJSON() ([]byte, error) {
	return json.Marshal(string([]byte{byte(d)}))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Delimiter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if len(s) != 1 {
			return fmt.Errorf("%w: delimiter must be a single byte, got %q", errors.ErrInvalidConfig, s)
		}
		*d = Delimiter(s[0])
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: delimiter must be a string or a byte value", errors.ErrInvalidConfig)
	}
	if n < 0 || n > 255 {
		return fmt.Errorf("%w: delimiter %d out of byte range", errors.ErrInvalidConfig, n)
	}
	*d = Delimiter(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Delimiter) MarshalYAML() (any, error) {
	return string([]byte{byte(d)}), nil
}

// LengthDelimitedOptions configures length-prefixed framing
type LengthDelimitedOptions struct {
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// FramingConfig is the framing variant plus the options of the chosen variant
type FramingConfig struct {
	Method             FramingMethod              `json:"method" yaml:"method"`
	NewlineDelimited   *NewlineDelimitedOptions   `json:"newline_delimited,omitempty" yaml:"newline_delimited,omitempty"`
	CharacterDelimited *CharacterDelimitedOptions `json:"character_delimited,omitempty" yaml:"character_delimited,omitempty"`
	LengthDelimited    *LengthDelimitedOptions    `json:"length_delimited,omitempty" yaml:"length_delimited,omitempty"`
}

// MessageBased returns framing that treats each payload as one frame
func MessageBased() FramingConfig {
	return FramingConfig{Method: FramingBytes}
}

// NewlineDelimited returns newline framing with an optional frame bound
func NewlineDelimited(maxLength int) FramingConfig {
	return FramingConfig{
		Method:           FramingNewlineDelimited,
		NewlineDelimited: &NewlineDelimitedOptions{MaxLength: maxLength},
	}
}

// CharacterDelimited returns framing on delimiter with an optional frame bound
func CharacterDelimited(delimiter byte, maxLength int) FramingConfig {
	return FramingConfig{
		Method:             FramingCharacterDelimited,
		CharacterDelimited: &CharacterDelimitedOptions{Delimiter: Delimiter(delimiter), MaxLength: maxLength},
	}
}

// LengthDelimited returns length-prefixed framing
func LengthDelimited(maxLength int) FramingConfig {
	return FramingConfig{
		Method:          FramingLengthDelimited,
		LengthDelimited: &LengthDelimitedOptions{MaxLength: maxLength},
	}
}

// Validate checks the framing configuration
func (f FramingConfig) Validate() error {
	switch f.Method {
	case FramingBytes, FramingNewlineDelimited, FramingLengthDelimited:
	case FramingCharacterDelimited:
		if f.CharacterDelimited == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "FramingConfig", "Validate",
				"character_delimited options")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown framing method %q", errors.ErrInvalidConfig, f.Method),
			"FramingConfig", "Validate", "method check")
	}
	if f.maxLength() < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_length cannot be negative", errors.ErrInvalidConfig),
			"FramingConfig", "Validate", "max_length check")
	}
	return nil
}

func (f FramingConfig) maxLength() int {
	switch f.Method {
	case FramingNewlineDelimited:
		if f.NewlineDelimited != nil {
			return f.NewlineDelimited.MaxLength
		}
	case FramingCharacterDelimited:
		if f.CharacterDelimited != nil {
			return f.CharacterDelimited.MaxLength
		}
	case FramingLengthDelimited:
		if f.LengthDelimited != nil {
			return f.LengthDelimited.MaxLength
		}
	}
	return 0
}

// DeserializerCodec selects how one frame becomes events
type DeserializerCodec string

// Deserializer codecs
const (
	DeserializerBytes      DeserializerCodec = "bytes"
	DeserializerJSON       DeserializerCodec = "json"
	DeserializerNativeJSON DeserializerCodec = "native_json"
	DeserializerNative     DeserializerCodec = "native"
)

// DeserializerConfig selects the deserializer
type DeserializerConfig struct {
	Codec DeserializerCodec `json:"codec" yaml:"codec"`
}

// Validate checks the deserializer configuration
func (d DeserializerConfig) Validate() error {
	switch d.Codec {
	case DeserializerBytes, DeserializerJSON, DeserializerNativeJSON, DeserializerNative:
		return nil
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown decoding codec %q", errors.ErrInvalidConfig, d.Codec),
			"DeserializerConfig", "Validate", "codec check")
	}
}

// SerializerCodec selects how one event becomes a frame
type SerializerCodec string

// Serializer codecs
const (
	SerializerText       SerializerCodec = "text"
	SerializerJSON       SerializerCodec = "json"
	SerializerNativeJSON SerializerCodec = "native_json"
	SerializerNative     SerializerCodec = "native"
)

// SerializerConfig selects the serializer
type SerializerConfig struct {
	Codec SerializerCodec `json:"codec" yaml:"codec"`
}

// Validate checks the serializer configuration
func (s SerializerConfig) Validate() error {
	switch s.Codec {
	case SerializerText, SerializerJSON, SerializerNativeJSON, SerializerNative:
		return nil
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown encoding codec %q", errors.ErrInvalidConfig, s.Codec),
			"SerializerConfig", "Validate", "codec check")
	}
}

// ContentType returns the media type a peer should send for the framing and deserializer
// pair. It is used as the Accept header of scrape requests.
func ContentType(framing FramingConfig, deserializer DeserializerConfig) string {
	switch deserializer.Codec {
	case DeserializerJSON, DeserializerNativeJSON:
		if framing.Method == FramingNewlineDelimited {
			return "application/x-ndjson"
		}
		return "application/json"
	case DeserializerNative:
		return "application/octet-stream"
	default:
		return "text/plain"
	}
}
