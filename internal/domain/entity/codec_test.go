package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFieldsRoundTrip(t *testing.T) {
	e := NewEvent(EventTypeMessage, uuid.NewString(), uuid.NewString(), "hi", map[string]string{"trace": "abc"})

	fields := e.ToStreamFields()
	asStrings := make(map[string]string, len(fields))
	for k, v := range fields {
		asStrings[k] = v.(string)
	}

	decoded, err := EventFromStreamFields(asStrings)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestStreamFieldsEmptyMetadata(t *testing.T) {
	e := NewEvent(EventTypeCall, uuid.NewString(), uuid.NewString(), "ring", nil)

	fields := e.ToStreamFields()
	assert.Equal(t, "{}", fields["metadata"])

	asStrings := make(map[string]string, len(fields))
	for k, v := range fields {
		asStrings[k] = v.(string)
	}
	decoded, err := EventFromStreamFields(asStrings)
	require.NoError(t, err)
	assert.Nil(t, decoded.Metadata)
}

func TestEventFromStreamFieldsRejectsInvalid(t *testing.T) {
	e := NewEvent(EventTypeMessage, uuid.NewString(), uuid.NewString(), "hi", nil)
	fields := map[string]string{
		"event_id":    e.EventID,
		"event_type":  "message",
		"sender_id":   e.SenderID,
		"receiver_id": e.ReceiverID,
		"text":        "hi",
		"metadata":    "not-json",
		"timestamp":   e.Timestamp,
	}
	_, err := EventFromStreamFields(fields)
	assert.Error(t, err)

	fields["metadata"] = "{}"
	fields["sender_id"] = "nope"
	_, err = EventFromStreamFields(fields)
	assert.Error(t, err)
}

func TestProtoRoundTrip(t *testing.T) {
	e := NewEvent(EventTypeNotification, uuid.NewString(), uuid.NewString(), "ping", map[string]string{"a": "1"})

	decoded, err := EventFromProto(e.ToProto())
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}
