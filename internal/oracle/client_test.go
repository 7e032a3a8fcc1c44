package oracle

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
)

func startServer(t *testing.T, backend Oracle) (string, *observability.OracleCollector) {
	t.Helper()
	collector, err := observability.NewOracleCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOracleCollector: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer(ServerOptions(logging.Noop(), collector)...)
	NewServer(backend, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return lis.Addr().String(), collector
}

func dialTest(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(ClientConfig{Address: addr, MaxConnections: 2, ConnectionTimeout: 2 * time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientServerRoundTrip(t *testing.T) {
	backend := NewStatic(vis("S1", "M1", 50, 150), vis("S1", "M1", 400, 500))
	addr, collector := startServer(t, backend)
	client := dialTest(t, addr)

	ctx, _ := logging.EnsureRequestID(context.Background())
	got, err := client.QueryVisibility(ctx, "S1", "M1", at(0), at(1000))
	if err != nil {
		t.Fatalf("QueryVisibility: %v", err)
	}
	if len(got) != 2 || !got[0].Start.Equal(at(50)) || !got[1].End.Equal(at(500)) {
		t.Fatalf("intervals = %+v", got)
	}
	if n := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("VisibilityOracle", "QueryVisibility", "OK")); n != 1 {
		t.Fatalf("server rpc count = %v, want 1", n)
	}
}

func TestClientMapsServerErrors(t *testing.T) {
	backend := NewStatic()
	backend.FailNext(ErrNotFound, ErrConnectionRefused)
	addr, _ := startServer(t, backend)
	client := dialTest(t, addr)

	if _, err := client.QueryVisibility(context.Background(), "S1", "M1", at(0), at(10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first error = %v, want ErrNotFound", err)
	}
	if _, err := client.QueryVisibility(context.Background(), "S1", "M1", at(0), at(10)); !errors.Is(err, ErrConnectionRefused) {
		t.Fatalf("second error = %v, want ErrConnectionRefused", err)
	}
}

func TestClientRejectsBadQueriesServerSide(t *testing.T) {
	g := NewGeometry(geometryCatalog(t), GeometryConfig{})
	addr, _ := startServer(t, g)
	client := dialTest(t, addr)

	if _, err := client.QueryVisibility(context.Background(), "NOPE", "M1", at(0), at(10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestClientUnreachableServerIsRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	client := dialTest(t, addr)
	_, err = client.QueryVisibility(context.Background(), "S1", "M1", at(0), at(10))
	if !IsTransient(err) {
		t.Fatalf("error = %v, want a transient connection error", err)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	if _, err := Dial(ClientConfig{}, nil, nil); err == nil {
		t.Fatalf("Dial without address should fail")
	}
}
