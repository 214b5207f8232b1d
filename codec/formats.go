package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TimeTag = cbor.EncTagRequired
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		// Field maps decoded into any must be map[string]any, matching the JSON codecs
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalNative encodes v with the native binary format
func MarshalNative(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// UnmarshalNative decodes native binary data into v
func UnmarshalNative(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
