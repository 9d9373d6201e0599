package server

import (
	"connectrpc.com/connect"
	json "github.com/goccy/go-json"
)

// jsonCodec carries plain Go structs over Connect. The codec connect ships
// under the "json" name only accepts protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

// handlerOptions are applied to every handler the server registers.
func handlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(jsonCodec{})}
}

// ClientOptions configures a connect client to talk to this server.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(jsonCodec{})}
}
