package component

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomwslape5638/vector/errors"
)

func intPtr(i int) *int {
	return &i
}

func TestParseSchemaTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    SchemaDirectives
		wantErr bool
	}{
		{
			name: "string field",
			tag:  "type:string,description:Endpoint URI,category:basic",
			want: SchemaDirectives{Type: "string", Description: "Endpoint URI", Category: "basic"},
		},
		{
			name: "int field with constraints",
			tag:  "type:int,description:Scrape interval,min:1,max:3600,default:15",
			want: SchemaDirectives{
				Type: "int", Description: "Scrape interval", Default: "15",
				Min: intPtr(1), Max: intPtr(3600),
			},
		},
		{
			name: "enum field",
			tag:  "type:enum,description:Codec,enum:bytes | json|native,default:bytes",
			want: SchemaDirectives{
				Type: "enum", Description: "Codec", Default: "bytes",
				Enum: []string{"bytes", "json", "native"},
			},
		},
		{
			name: "flags",
			tag:  "required, hidden, type:string",
			want: SchemaDirectives{Type: "string", Required: true, Hidden: true},
		},
		{name: "empty", tag: "", wantErr: true},
		{name: "missing type", tag: "description:x", wantErr: true},
		{name: "invalid type", tag: "type:ports", wantErr: true},
		{name: "invalid category", tag: "type:int,category:expert", wantErr: true},
		{name: "invalid min", tag: "type:int,min:one", wantErr: true},
		{name: "unknown flag", tag: "type:int,readonly", wantErr: true},
		{name: "unknown directive", tag: "type:int,help:x", wantErr: true},
		{name: "empty value", tag: "type:int,default:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaTag(tt.tag)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type taggedConfig struct {
	URI      string   `json:"uri" schema:"required,type:string,description:Target URI,category:basic"`
	Interval int      `json:"interval_secs" schema:"type:int,description:Interval,min:1,default:15"`
	Enabled  bool     `json:"enabled" schema:"type:bool,description:Enabled,default:true"`
	Ratio    float64  `json:"ratio" schema:"type:float,default:0.5"`
	Codec    string   `json:"codec,omitempty" schema:"type:enum,enum:bytes|json,default:json"`
	Tags     []string `json:"tags" schema:"type:array,default:a|b"`
	TLS      struct{} `json:"tls" schema:"type:object,description:TLS settings"`
	Secret   string   `json:"secret" schema:"hidden,type:string"`
	Broken   string   `json:"broken" schema:"type:nope"`
	Untagged string   `json:"untagged"`
	Ignored  string   `json:"-" schema:"type:string"`
}

func TestGenerateConfigSchema(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf(taggedConfig{}))

	assert.ElementsMatch(t,
		[]string{"uri", "interval_secs", "enabled", "ratio", "codec", "tags", "tls"},
		SortedKeys(schema.Properties))
	assert.Equal(t, []string{"uri"}, schema.Required)

	assert.Equal(t, PropertySchema{
		Type: "int", Description: "Interval", Default: 15, Minimum: intPtr(1),
	}, schema.Properties["interval_secs"])
	assert.Equal(t, true, schema.Properties["enabled"].Default)
	assert.Equal(t, 0.5, schema.Properties["ratio"].Default)
	assert.Equal(t, "ratio", schema.Properties["ratio"].Description)
	assert.Equal(t, []string{"bytes", "json"}, schema.Properties["codec"].Enum)
	assert.Equal(t, []string{"a", "b"}, schema.Properties["tags"].Default)
	assert.Nil(t, schema.Properties["tls"].Default)
	assert.Equal(t, "basic", schema.Properties["uri"].Category)
}

func TestGenerateConfigSchema_PointerAndNonStruct(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf(&taggedConfig{}))
	assert.Contains(t, schema.Properties, "uri")

	schema = GenerateConfigSchema(reflect.TypeOf("string"))
	assert.Empty(t, schema.Properties)
}

func TestConvertDefault_InvalidValues(t *testing.T) {
	assert.Nil(t, convertDefault("abc", "int"))
	assert.Nil(t, convertDefault("maybe", "bool"))
	assert.Nil(t, convertDefault("x", "float"))
	assert.Nil(t, convertDefault(nil, "string"))
	assert.Equal(t, "info", convertDefault("info", "enum"))
}
