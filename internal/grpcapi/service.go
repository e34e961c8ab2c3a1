package grpcapi

import (
	"google.golang.org/grpc"

	"github.com/kestrelops/kestrel/internal/bus"
)

// eventStreamServer is the handler-side interface the hand-written service
// descriptor below dispatches to; Server (in server.go) implements it.
type eventStreamServer interface {
	Watch(req *WatchRequest, stream grpc.ServerStream) error
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return srv.(eventStreamServer).Watch(&req, stream)
}

// ServiceDesc describes the PlaybookEvents service without a .proto file:
// one server-streaming method, Watch, framed over gRPC's HTTP/2 transport
// using jsonCodec instead of protobuf wire encoding.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "kestrel.PlaybookEvents",
	HandlerType: (*eventStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "kestrel/grpcapi/playbook_events",
}

func toEventMessage(ev bus.Event) *EventMessage {
	m := &EventMessage{
		Kind:    string(ev.Kind),
		Host:    ev.Host,
		Play:    ev.Play,
		Task:    ev.Task,
		Handler: ev.Handler,
		Attempt: int32(ev.Attempt),
	}
	if ev.Result != nil {
		m.Changed = ev.Result.Changed
		m.Failed = ev.Result.Failed
		m.Skipped = ev.Result.Skipped
		m.Unreachable = ev.Result.Unreachable
		m.Msg = ev.Result.Msg
	}
	if ev.Err != nil {
		m.Err = ev.Err.Error()
	}
	return m
}

func kindFilter(kinds []string) []bus.Kind {
	out := make([]bus.Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, bus.Kind(k))
	}
	return out
}
