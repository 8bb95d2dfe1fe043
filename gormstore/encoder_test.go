package gormstore_test

import (
	"testing"

	"github.com/altsrc/sourced/gormstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEncoderShouldRoundTripRegisteredPayloads(t *testing.T) {
	enc := gormstore.NewJSONEncoder(SomeEvent{}, &OtherEvent{})

	encoded, err := enc.Encode(SomeEvent{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, "SomeEvent", encoded.Type)
	assert.JSONEq(t, `{"UserID":"user-1"}`, encoded.Data)

	decoded, err := enc.Decode(encoded)

	require.NoError(t, err)
	assert.Equal(t, SomeEvent{UserID: "user-1"}, decoded)
}

func TestJSONEncoderShouldRegisterPointerPayloadsByValueType(t *testing.T) {
	enc := gormstore.NewJSONEncoder(&OtherEvent{})

	decoded, err := enc.Decode(&gormstore.EncodedEvt{
		Type: "OtherEvent",
		Data: `{"Note":"hi"}`,
	})

	require.NoError(t, err)
	assert.Equal(t, OtherEvent{Note: "hi"}, decoded)
}

func TestJSONEncoderShouldRejectUnregisteredType(t *testing.T) {
	enc := gormstore.NewJSONEncoder(SomeEvent{})

	_, err := enc.Decode(&gormstore.EncodedEvt{
		Type: "UnknownEvent",
		Data: `{}`,
	})

	assert.Error(t, err)
}

func TestJSONEncoderShouldFailOnMalformedData(t *testing.T) {
	enc := gormstore.NewJSONEncoder(SomeEvent{})

	_, err := enc.Decode(&gormstore.EncodedEvt{
		Type: "SomeEvent",
		Data: "malformed-json",
	})

	assert.Error(t, err)
}
