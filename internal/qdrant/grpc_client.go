package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/reqengine/internal/logging"
)

// GRPCClient implements Client with the official Qdrant Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host defaults to "localhost".
	Host string
	// Port is the gRPC port, 6334 by default. The REST port 6333 does not
	// work here.
	Port int

	UseTLS bool
	APIKey string

	// MaxMessageSize bounds gRPC messages in both directions. Default 16MB.
	MaxMessageSize int

	// DialTimeout bounds the health check run on connect. Default 5s.
	DialTimeout time.Duration
	// RequestTimeout bounds each call including its retries. Default 30s.
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries after a transient failure.
	// Default 3.
	RetryAttempts int
	// RetryBackoff is the first retry delay. It grows exponentially.
	// Default 500ms.
	RetryBackoff time.Duration

	// Distance is used for new collections. Default cosine, which makes
	// search scores equal to similarity.
	Distance qdrant.Distance
}

// DefaultClientConfig returns the settings for a local Qdrant.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		MaxMessageSize: 16 << 20,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   500 * time.Millisecond,
		Distance:       qdrant.Distance_Cosine,
	}
}

// ApplyDefaults fills zero fields from DefaultClientConfig.
func (c *ClientConfig) ApplyDefaults() {
	d := DefaultClientConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = d.Distance
	}
}

func (c *ClientConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 0:
		return fmt.Errorf("%w: retry attempts must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// NewGRPCClient connects and runs a health check. A nil config means
// DefaultClientConfig; a nil logger discards retry diagnostics.
func NewGRPCClient(config *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		),
	}
	if !config.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        config.Host,
		Port:        config.Port,
		UseTLS:      config.UseTLS,
		APIKey:      config.APIKey,
		GrpcOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	c := &GRPCClient{client: client, config: config, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info(ctx, "connected to qdrant",
		zap.String("host", config.Host),
		zap.Int("port", config.Port))
	return c, nil
}

func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	return c.do(ctx, "create_collection", func(ctx context.Context) error {
		return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: c.config.Distance,
			}),
		})
	})
}

func (c *GRPCClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.do(ctx, "collection_exists", func(ctx context.Context) error {
		found, err := c.client.CollectionExists(ctx, name)
		exists = found
		return err
	})
	return exists, err
}

func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = toPointStruct(p)
	}
	return c.do(ctx, "upsert", func(ctx context.Context) error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         structs,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

func (c *GRPCClient) Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error) {
	var hits []*qdrant.ScoredPoint
	err := c.do(ctx, "search", func(ctx context.Context) error {
		res, err := c.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         toFilter(filter),
		})
		hits = res
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*ScoredPoint, len(hits))
	for i, h := range hits {
		out[i] = fromScoredPoint(h)
	}
	return out, nil
}

func (c *GRPCClient) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	return c.do(ctx, "delete", func(ctx context.Context) error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelector(pointIDs...),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

func (c *GRPCClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// do runs op under the request timeout, retrying transient gRPC failures
// with exponential backoff.
func (c *GRPCClient) do(ctx context.Context, name string, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	return retry(ctx, c.logger.With(zap.String("op", name)), c.config.RetryAttempts, c.config.RetryBackoff, func() error {
		return op(ctx)
	})
}

// retry calls fn at most attempts+1 times. Errors that are not transient
// end the loop immediately.
func retry(ctx context.Context, logger *logging.Logger, attempts int, initial time.Duration, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = 8 * initial

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		err := fn()
		if err != nil && !isTransientError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug(ctx, "retrying qdrant call", zap.Int("attempt", tries), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err == nil {
		if tries > 1 {
			logger.Info(ctx, "qdrant call recovered", zap.Int("attempts", tries))
		}
		return nil
	}
	if tries > attempts && isTransientError(err) {
		logger.Warn(ctx, "qdrant call failed after retries", zap.Int("attempts", tries), zap.Error(err))
		return fmt.Errorf("qdrant call failed after %d attempts: %w", tries, err)
	}
	return err
}

// isTransientError reports whether a gRPC failure is worth retrying.
func isTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	}
	return false
}

func toPointStruct(p *Point) *qdrant.PointStruct {
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

func toFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Must) == 0 {
		return nil
	}
	out := &qdrant.Filter{}
	for _, cond := range f.Must {
		out.Must = append(out.Must, qdrant.NewMatchKeyword(cond.Field, cond.Match))
	}
	return out
}

func fromScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      pointID(p.GetId()),
			Payload: stringPayload(p.GetPayload()),
		},
		Score: p.GetScore(),
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if n := id.GetNum(); n != 0 {
		return strconv.FormatUint(n, 10)
	}
	return ""
}

// stringPayload keeps the string values of payload. The index never
// writes anything else.
func stringPayload(payload map[string]*qdrant.Value) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			out[k] = s.StringValue
		}
	}
	return out
}

var _ Client = (*GRPCClient)(nil)
