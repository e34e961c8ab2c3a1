package grpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/domain"
)

func startTestServer(t *testing.T, b *bus.Bus) (*grpc.ClientConn, func()) {
	t.Helper()
	srv := &Server{bus: b}
	gs := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	gs.RegisterService(&ServiceDesc, srv)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	cleanup := func() {
		conn.Close()
		gs.Stop()
		lis.Close()
	}
	return conn, cleanup
}

func TestWatchStreamsPublishedEvents(t *testing.T) {
	b := bus.New()
	conn, cleanup := startTestServer(t, b)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceDesc.ServiceName+"/Watch")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if err := stream.SendMsg(&WatchRequest{}); err != nil {
		t.Fatalf("send watch request: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("close send: %v", err)
	}

	// give the server goroutine time to subscribe before publishing, else
	// the event could be published before Watch's Subscribe call runs.
	time.Sleep(50 * time.Millisecond)

	if err := b.Publish(ctx, bus.Event{
		Kind: bus.TaskResult,
		Host: "web1",
		Play: "deploy",
		Task: "install package",
		Result: &domain.ModuleResult{Changed: true},
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var msg EventMessage
	if err := stream.RecvMsg(&msg); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Host != "web1" || msg.Task != "install package" || !msg.Changed {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestWatchFiltersByKind(t *testing.T) {
	b := bus.New()
	conn, cleanup := startTestServer(t, b)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceDesc.ServiceName+"/Watch")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if err := stream.SendMsg(&WatchRequest{Kinds: []string{string(bus.HostUnreachable)}}); err != nil {
		t.Fatalf("send watch request: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("close send: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := b.Publish(ctx, bus.Event{Kind: bus.TaskStart, Host: "web1"}); err != nil {
		t.Fatalf("publish task_start: %v", err)
	}
	if err := b.Publish(ctx, bus.Event{Kind: bus.HostUnreachable, Host: "web1"}); err != nil {
		t.Fatalf("publish host_unreachable: %v", err)
	}

	var msg EventMessage
	if err := stream.RecvMsg(&msg); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != string(bus.HostUnreachable) {
		t.Fatalf("expected filtered stream to skip task_start, got %q", msg.Kind)
	}
}
