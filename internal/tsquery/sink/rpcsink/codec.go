package rpcsink

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets Sink invoke an arbitrary unary RPC method without a
// protoc-generated stub: the sink's payload is an envelopeMessage struct,
// marshaled/unmarshaled as JSON rather than protobuf wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
