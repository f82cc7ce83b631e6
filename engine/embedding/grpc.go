package embedding

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// EmbedImageMethod is the full gRPC method served by the model worker. The
// request and response are google.protobuf.Struct messages so no generated
// stubs are needed on either side.
const EmbedImageMethod = "/herbid.ml.v1.ImageEmbedService/EmbedImage"

// GRPCExtractor talks to the model worker over gRPC.
type GRPCExtractor struct {
	conn  grpc.ClientConnInterface
	close func() error
	opts  WorkerOpts
}

// DialGRPCExtractor connects to the worker at opts.URL (host:port).
func DialGRPCExtractor(opts WorkerOpts) (*GRPCExtractor, error) {
	conn, err := grpc.NewClient(opts.URL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("embedding: dial worker %s: %w", opts.URL, err)
	}
	return &GRPCExtractor{conn: conn, close: conn.Close, opts: opts}, nil
}

// NewGRPCExtractorWithConn builds an extractor on an existing connection.
func NewGRPCExtractorWithConn(conn grpc.ClientConnInterface, opts WorkerOpts) *GRPCExtractor {
	return &GRPCExtractor{conn: conn, opts: opts}
}

// Close releases the connection if this extractor dialled it.
func (e *GRPCExtractor) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func (e *GRPCExtractor) Model() string  { return e.opts.Model }
func (e *GRPCExtractor) Dimension() int { return e.opts.Dimension }

// Extract implements Extractor.
func (e *GRPCExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	if _, _, err := Decode(data); err != nil {
		return nil, err
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(map[string]any{
		"model": e.opts.Model,
		"image": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding grpc: build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := e.conn.Invoke(ctx, EmbedImageMethod, req, resp); err != nil {
		return nil, fmt.Errorf("embedding grpc: %w", err)
	}

	if m := resp.GetFields()["model"].GetStringValue(); m != "" && e.opts.Model != "" && m != e.opts.Model {
		return nil, fmt.Errorf("embedding grpc: served model %q, expected %q", m, e.opts.Model)
	}
	values := resp.GetFields()["values"].GetListValue().GetValues()
	vec := make([]float32, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("embedding grpc: value %d is not a number", i)
		}
		vec[i] = float32(n.NumberValue)
	}
	if err := checkDimension(vec, e.opts.Dimension); err != nil {
		return nil, err
	}
	return L2Normalize(vec), nil
}

var _ Extractor = (*GRPCExtractor)(nil)
