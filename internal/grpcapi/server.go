// Package grpcapi adapts the result and callback bus (C9) to a streaming
// gRPC transport so an external dashboard can observe a running playbook,
// in the style of the teacher's internal/grpc server Start/Stop lifecycle
// (server.go), but hand-written against grpc.ServiceDesc directly since no
// .proto/protoc step is available here.
package grpcapi

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/logging"
)

// Server streams bus events to connected watchers. It is a bus.Observer in
// the same sense as the Prometheus and tracing collectors: optional, wired
// only from cmd/kestrel.
type Server struct {
	bus    *bus.Bus
	server *grpc.Server
}

// NewServer builds a Server over b. Call Start to begin serving.
func NewServer(b *bus.Bus) *Server {
	return &Server{bus: b}
}

// Start listens on addr and serves PlaybookEvents until Stop is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcapi: listen: %w", err)
	}

	s.server = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.server.RegisterService(&ServiceDesc, s)

	logging.Op().Info("grpc event stream started", "addr", addr)

	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("grpc event stream error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server, if started.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

// Watch implements eventStreamServer: it subscribes to the bus (filtered by
// req.Kinds, or everything if empty) and streams events until the client
// disconnects or the bus closes.
func (s *Server) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ch := s.bus.Subscribe(ctx, 256, kindFilter(req.Kinds)...)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(toEventMessage(ev)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Watcher is a thin client for PlaybookEvents.Watch, for external
// dashboards, in place of a protoc-generated stub.
type Watcher struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

// Dial connects to addr and opens a Watch stream filtered by kinds.
func Dial(ctx context.Context, addr string, kinds ...string) (*Watcher, error) {
	conn, err := grpc.NewClient(addr, grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpcapi: dial: %w", err)
	}

	desc := &ServiceDesc.Streams[0]
	stream, err := conn.NewStream(ctx, desc, "/"+ServiceDesc.ServiceName+"/Watch")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("grpcapi: open stream: %w", err)
	}
	if err := stream.SendMsg(&WatchRequest{Kinds: kinds}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("grpcapi: send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("grpcapi: close send: %w", err)
	}

	return &Watcher{conn: conn, stream: stream}, nil
}

// Recv blocks for the next event.
func (w *Watcher) Recv() (*EventMessage, error) {
	var msg EventMessage
	if err := w.stream.RecvMsg(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the underlying connection.
func (w *Watcher) Close() error {
	return w.conn.Close()
}
