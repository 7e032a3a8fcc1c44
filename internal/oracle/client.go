package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// ClientConfig configures the network oracle client.
type ClientConfig struct {
	Address           string
	MaxConnections    int
	ConnectionTimeout time.Duration
}

// Client queries a remote oracle over a bounded set of gRPC connections.
// Each pool slot owns one connection, so at most MaxConnections queries are
// in flight and no connection is shared between concurrent queries.
type Client struct {
	conns   []*grpc.ClientConn
	pool    *Pool
	timeout time.Duration
	log     logging.Logger
	metrics *observability.OracleCollector
}

// Dial creates the connections. They connect lazily on first use.
func Dial(cfg ClientConfig, log logging.Logger, metrics *observability.OracleCollector, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("oracle client: empty address")
	}
	if log == nil {
		log = logging.Noop()
	}
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 1
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	c := &Client{
		pool:    NewPool(cfg.MaxConnections, cfg.ConnectionTimeout, metrics),
		timeout: cfg.ConnectionTimeout,
		log:     log,
		metrics: metrics,
	}
	for i := 0; i < cfg.MaxConnections; i++ {
		conn, err := grpc.NewClient(cfg.Address, dialOpts...)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("oracle client: dial %s: %w", cfg.Address, err)
		}
		c.conns = append(c.conns, conn)
	}
	return c, nil
}

// Close tears down every connection.
func (c *Client) Close() error {
	var errs []error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
	slot, release, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := encodeQuery(query{SatelliteID: satelliteID, MissileID: missileID, Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, requestIDMetadataKey, id)
	}

	resp := new(structpb.Struct)
	if err := c.conns[slot].Invoke(callCtx, queryMethod, req, resp); err != nil {
		err = FromStatus(err)
		logging.FromContext(ctx, c.log).Debug(ctx, "oracle rpc failed",
			logging.String("satellite_id", satelliteID),
			logging.Missile(missileID),
			logging.Err(err),
		)
		return nil, err
	}
	return decodeIntervals(resp)
}
