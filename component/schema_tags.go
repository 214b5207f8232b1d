// Schema tags generate a ConfigSchema from the struct tags of a config type:
//
//	type Config struct {
//	    URI string `json:"uri" schema:"required,type:string,description:WebSocket endpoint,category:basic"`
//	    PingInterval *int `json:"ping_interval,omitempty" schema:"type:int,description:Seconds between pings,min:1"`
//	}
//
//	var schema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
//
// Directives are comma separated. Key-value directives use a colon (type, description,
// category, default, min, max, enum with pipe-separated values); boolean flags have no
// colon (required, hidden). Fields without a schema tag are skipped.
package component

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/Tomwslape5638/vector/errors"
)

// SchemaDirectives represents parsed schema tag directives
type SchemaDirectives struct {
	Type        string
	Description string
	Category    string // "basic" or "advanced"
	Hidden      bool   // left out of the generated schema

	Default  any // raw string, converted by type during generation
	Required bool
	Min      *int
	Max      *int
	Enum     []string
}

// ParseSchemaTag parses a schema struct tag into directives. The type directive is
// required; unknown directives and malformed values are errors.
//
//	schema:"type:int,description:Seconds between scrapes,min:1,default:15"
//	schema:"type:enum,description:Framing,enum:bytes|newline_delimited,default:bytes"
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	var directives SchemaDirectives

	if tag == "" {
		return directives, errors.WrapInvalid(
			fmt.Errorf("empty schema tag"), "SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, isPair := strings.Cut(part, ":")
		if !isPair {
			if err := parseBooleanFlag(part, &directives); err != nil {
				return directives, err
			}
			continue
		}
		if err := parseKeyValueDirective(strings.TrimSpace(key), strings.TrimSpace(value), &directives); err != nil {
			return directives, err
		}
	}

	if directives.Type == "" {
		return directives, errors.WrapInvalid(
			fmt.Errorf("type directive is required"), "SchemaTag", "ParseSchemaTag", "required field validation")
	}
	return directives, nil
}

func parseBooleanFlag(flag string, directives *SchemaDirectives) error {
	switch flag {
	case "hidden":
		directives.Hidden = true
	case "required":
		directives.Required = true
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown boolean flag: %s", flag), "SchemaTag", "parseBooleanFlag", "flag parsing")
	}
	return nil
}

func parseKeyValueDirective(key, value string, directives *SchemaDirectives) error {
	if value == "" {
		return errors.WrapInvalid(
			fmt.Errorf("empty value for directive: %s", key), "SchemaTag", "parseKeyValueDirective", "value validation")
	}

	invalid := func(what string) error {
		return errors.WrapInvalid(
			fmt.Errorf("invalid %s: %s", what, value), "SchemaTag", "parseKeyValueDirective", what+" validation")
	}

	switch key {
	case "type":
		if !slices.Contains(validTypes, value) {
			return invalid("type")
		}
		directives.Type = value
	case "description":
		directives.Description = value
	case "category":
		if value != "basic" && value != "advanced" {
			return invalid("category")
		}
		directives.Category = value
	case "default":
		directives.Default = value
	case "min", "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid(key)
		}
		if key == "min" {
			directives.Min = &n
		} else {
			directives.Max = &n
		}
	case "enum":
		for _, v := range strings.Split(value, "|") {
			directives.Enum = append(directives.Enum, strings.TrimSpace(v))
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown directive: %s", key), "SchemaTag", "parseKeyValueDirective", "directive validation")
	}
	return nil
}

var validTypes = []string{"string", "int", "bool", "float", "enum", "array", "object"}

// GenerateConfigSchema builds a ConfigSchema from the json and schema tags of a struct
// type. It is meant to run once at package init. Fields with json:"-", without a schema
// tag, or with an invalid schema tag are skipped; pointer types are dereferenced and
// non-struct types yield an empty schema.
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
		Required:   []string{},
	}

	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)

		fieldName, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if fieldName == "" || fieldName == "-" {
			continue
		}

		schemaTag := field.Tag.Get("schema")
		if schemaTag == "" {
			continue
		}
		directives, err := ParseSchemaTag(schemaTag)
		if err != nil || directives.Hidden {
			continue
		}

		description := directives.Description
		if description == "" {
			description = fieldName
		}

		schema.Properties[fieldName] = PropertySchema{
			Type:        directives.Type,
			Description: description,
			Category:    directives.Category,
			Default:     convertDefault(directives.Default, directives.Type),
			Minimum:     directives.Min,
			Maximum:     directives.Max,
			Enum:        directives.Enum,
		}
		if directives.Required {
			schema.Required = append(schema.Required, fieldName)
		}
	}

	return schema
}

// convertDefault converts the raw default of a tag to the property type. Values that do
// not convert are dropped.
func convertDefault(value any, fieldType string) any {
	valueStr, ok := value.(string)
	if !ok {
		return value
	}

	switch fieldType {
	case "int":
		if n, err := strconv.Atoi(valueStr); err == nil {
			return n
		}
		return nil
	case "bool":
		if b, err := strconv.ParseBool(valueStr); err == nil {
			return b
		}
		return nil
	case "float":
		if f, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return f
		}
		return nil
	case "array":
		// Array defaults are pipe separated since commas delimit directives
		return strings.Split(valueStr, "|")
	case "object":
		return nil
	default:
		return valueStr
	}
}
