package grpcapi

import "encoding/json"

// jsonCodec lets the service exchange plain Go structs over gRPC's HTTP/2
// framing without a protoc-generated proto.Message type. It is forced on
// the server via grpc.ForceServerCodec, so no client-side content
// negotiation is required.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
