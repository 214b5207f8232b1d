package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/Tomwslape5638/vector/errors"
)

// Config validation limits
const (
	MaxNameLength   = 256         // Maximum length of component names
	MaxStringLength = 8192        // Maximum length for string values
	MaxJSONSize     = 1024 * 1024 // Maximum raw config size (1MB)
)

// ConfigValidator guards factories against oversized or malformed configurations
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
	maxStringLen int
	maxJSONSize  int
}

// NewConfigValidator creates a validator with default limits
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		maxDepth:     10,
		maxArraySize: 1000,
		maxStringLen: MaxStringLength,
		maxJSONSize:  MaxJSONSize,
	}
}

// ValidateConfig checks size, nesting depth and string content of a raw JSON config
func (v *ConfigValidator) ValidateConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > v.maxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), v.maxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}

	// Empty config is valid (components have defaults)
	if len(bytes.TrimSpace(rawConfig)) == 0 {
		return nil
	}

	var config any
	decoder := json.NewDecoder(bytes.NewReader(rawConfig))
	decoder.UseNumber()

	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}

	if err := v.validateValue(config, 0); err != nil {
		return errors.Wrap(err, "ConfigValidator", "ValidateConfig", "deep validation")
	}
	return nil
}

func (v *ConfigValidator) validateValue(value any, depth int) error {
	if depth > v.maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, v.maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		if len(val) > v.maxStringLen {
			return errors.WrapInvalid(
				fmt.Errorf("string length %d exceeds maximum %d", len(val), v.maxStringLen),
				"ConfigValidator", "validateValue", "string length check")
		}
		return v.validateStringContent(val)

	case json.Number:
		if _, err := val.Float64(); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "validateValue", "number validation")
		}

	case []any:
		if len(val) > v.maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), v.maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for i, elem := range val {
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, elem := range val {
			if len(key) > v.maxStringLen {
				return errors.WrapInvalid(
					fmt.Errorf("key '%s' length exceeds maximum", key),
					"ConfigValidator", "validateValue", "key length check")
			}
			if err := v.validateStringContent(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "key validation")
			}
			if err := v.validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("object field '%s'", key))
			}
		}

	case bool, nil:

	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T in config", value),
			"ConfigValidator", "validateValue", "type check")
	}

	return nil
}

// validateStringContent rejects NUL and control characters other than \t, \n and \r
func (v *ConfigValidator) validateStringContent(s string) error {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character: 0x%02x", r),
				"ConfigValidator", "validateStringContent", "control character check")
		}
	}
	return nil
}

// ValidateFactoryConfig performs validation before a config is handed to a factory
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	return NewConfigValidator().ValidateConfig(rawConfig)
}

// Validatable is implemented by configs that can self-validate
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates rawConfig and decodes it into target, which should already
// hold the defaults. Unknown fields are rejected. If target implements Validatable its
// Validate method runs last.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}

	if targetType := reflect.TypeOf(target); targetType == nil || targetType.Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"ConfigValidator", "SafeUnmarshal", "target type check")
	}

	if trimmed := bytes.TrimSpace(rawConfig); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(target); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.TrimPrefix(err.Error(), "json: ")),
				"ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
		}
	}

	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}
