package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrCircuitOpen is returned by Publisher.Publish while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Putter sends a record batch to a named dataset.
type Putter interface {
	DoPut(ctx context.Context, dataset string, record arrow.RecordBatch) error
}

// FlightClient publishes manifests to an Arrow Flight endpoint.
type FlightClient struct {
	client flight.Client
	conn   *grpc.ClientConn
}

// NewFlightClient creates a client for the Flight server at addr. The
// connection is established lazily on the first call.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("flight client %s: %w", addr, err)
	}
	return &FlightClient{
		client: flight.NewClientFromConn(conn, nil),
		conn:   conn,
	}, nil
}

// DoPut streams record to the dataset, addressed by a path descriptor.
func (c *FlightClient) DoPut(ctx context.Context, dataset string, record arrow.RecordBatch) error {
	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{dataset},
	})
	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	// drain the server's acknowledgements; a failed put surfaces here
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (c *FlightClient) Close() error {
	return c.conn.Close()
}

// Publisher sends manifests through a Putter guarded by a CircuitBreaker.
type Publisher struct {
	put     Putter
	breaker *CircuitBreaker
	dataset string
}

func NewPublisher(put Putter, breaker *CircuitBreaker, dataset string) *Publisher {
	return &Publisher{put: put, breaker: breaker, dataset: dataset}
}

// Publish sends rec unless the breaker is open.
func (p *Publisher) Publish(ctx context.Context, rec arrow.RecordBatch) error {
	if !p.breaker.Allow() {
		return fmt.Errorf("publish to %s: %w", p.dataset, ErrCircuitOpen)
	}
	if err := p.put.DoPut(ctx, p.dataset, rec); err != nil {
		p.breaker.Failure()
		log.Warn().Err(err).
			Str("dataset", p.dataset).
			Str("breaker", p.breaker.State().String()).
			Msg("Manifest publish failed")
		return fmt.Errorf("publish to %s: %w", p.dataset, err)
	}
	p.breaker.Success()
	return nil
}
