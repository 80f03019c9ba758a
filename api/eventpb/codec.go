package eventpb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 客户端通过 grpc.CallContentSubtype 选用该 codec
const CodecName = "fabric-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec 实现 encoding.Codec，报文整体走 JSON
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }
