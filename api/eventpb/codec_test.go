package eventpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	assert.NotNil(t, encoding.GetCodec(CodecName))
}

func TestCodecRoundTrip(t *testing.T) {
	codec := encoding.GetCodec(CodecName)

	batch := &EventBatch{Events: []*Event{
		{
			EventID:    "e-1",
			EventType:  "message",
			SenderID:   "s-1",
			ReceiverID: "r-1",
			Text:       "hello",
			Metadata:   `{"trace":"abc"}`,
			Timestamp:  "2026-01-01T00:00:00Z",
		},
	}}

	data, err := codec.Marshal(batch)
	require.NoError(t, err)

	var decoded EventBatch
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.Len(t, decoded.Events, 1)
	assert.Equal(t, batch.Events[0], decoded.Events[0])
}

func TestCodecUnmarshalRejectsGarbage(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	var ack Ack
	assert.Error(t, codec.Unmarshal([]byte("{"), &ack))
}
