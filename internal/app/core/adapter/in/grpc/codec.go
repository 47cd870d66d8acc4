package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 是 JSON codec 的 content-subtype (application/grpc+json)
const CodecName = "json"

// jsonCodec 讓 gRPC 直接以 JSON 傳送 message struct，不需要 protoc 產生的程式碼
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
