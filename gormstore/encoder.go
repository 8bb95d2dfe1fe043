package gormstore

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/altsrc/sourced"
)

// EncodedEvt is an event payload in its stored representation.
type EncodedEvt struct {
	Data string
	Type string
}

// Encoder marshals event payloads to and from their stored representation.
type Encoder interface {
	Encode(payload any) (*EncodedEvt, error)
	Decode(*EncodedEvt) (any, error)
}

// NewJSONEncoder constructs a json encoder aware of the provided payload
// types. Payloads are keyed by their type name, matching sourced.TypeName.
func NewJSONEncoder(payloads ...any) *JSONEncoder {
	enc := JSONEncoder{
		types: make(map[string]reflect.Type),
	}

	for _, payload := range payloads {
		t := reflect.TypeOf(payload)

		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}

		enc.types[t.Name()] = t
	}

	return &enc
}

// JSONEncoder is the default Encoder implementation. It marshals payloads
// to json and stores the payload type name alongside.
type JSONEncoder struct {
	types map[string]reflect.Type
}

// Encode marshals the payload to its json representation.
func (e *JSONEncoder) Encode(payload any) (*EncodedEvt, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &EncodedEvt{
		Type: sourced.TypeName(payload),
		Data: string(data),
	}, nil
}

// Decode unmarshals a stored payload back to its registered go type.
func (e *JSONEncoder) Decode(evt *EncodedEvt) (any, error) {
	t, ok := e.types[evt.Type]
	if !ok {
		return nil, fmt.Errorf("no payload type registered for %q", evt.Type)
	}

	v := reflect.New(t)

	err := json.Unmarshal([]byte(evt.Data), v.Interface())
	if err != nil {
		return nil, err
	}

	return v.Elem().Interface(), nil
}
