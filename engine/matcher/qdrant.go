package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/herbid/herbid/engine/domain"
)

// pointNamespace seeds deterministic point IDs so re-syncing a record
// overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c2b8e-6a4e-4a53-9a0e-2f1f7c3d9b10")

// PointID maps a herb record ID to its Qdrant point UUID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantIndex serves similarity queries from a Qdrant collection using
// cosine distance. Points carry the record names and embedding model in
// their payload, and queries filter on the model.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	threshold   float64
	logger      *slog.Logger
}

// NewQdrantIndex connects to Qdrant at the given gRPC address.
func NewQdrantIndex(addr, collection string, threshold float64, logger *slog.Logger) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("matcher: dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantIndexWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, threshold, logger)
	q.conn = conn
	return q, nil
}

// NewQdrantIndexWithClients builds an index on existing clients.
func NewQdrantIndexWithClients(points pointsAPI, collections collectionsAPI, collection string, threshold float64, logger *slog.Logger) *QdrantIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantIndex{
		points:      points,
		collections: collections,
		collection:  collection,
		threshold:   threshold,
		logger:      logger,
	}
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("matcher: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("matcher: create collection %s: %w", q.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection.
func (q *QdrantIndex) DeleteCollection(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("matcher: delete collection %s: %w", q.collection, err)
	}
	return nil
}

// Sync upserts every embedded record stamped with model and returns the
// number of points written. Points of records that are no longer comparable
// (no embedding or another model) are deleted.
func (q *QdrantIndex) Sync(ctx context.Context, records []domain.HerbRecord, model string) (int, error) {
	var (
		points []*pb.PointStruct
		stale  []*pb.PointId
	)
	for _, h := range records {
		id := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(h.ID)}}
		if !h.HasEmbedding() || (model != "" && h.EmbeddingModel != "" && h.EmbeddingModel != model) {
			stale = append(stale, id)
			continue
		}
		points = append(points, &pb.PointStruct{
			Id: id,
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: h.Embedding}},
			},
			Payload: map[string]*pb.Value{
				"record_id":       stringValue(h.ID),
				"common_name":     stringValue(h.CommonName),
				"scientific_name": stringValue(h.ScientificName),
				"embedding_model": stringValue(model),
			},
		})
	}

	wait := true
	if len(points) > 0 {
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return 0, fmt.Errorf("matcher: upsert %d points: %w", len(points), err)
		}
	}
	if len(stale) > 0 {
		_, err := q.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: stale},
				},
			},
		})
		if err != nil {
			return len(points), fmt.Errorf("matcher: delete %d stale points: %w", len(stale), err)
		}
	}
	return len(points), nil
}

func (q *QdrantIndex) search(ctx context.Context, query []float32, model string, limit int) ([]Match, error) {
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if model != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{fieldMatch("embedding_model", model)}}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("matcher: qdrant search: %w", err)
	}

	var out []Match
	for _, p := range resp.GetResult() {
		score := float64(p.GetScore())
		if !(score > q.threshold) {
			continue
		}
		payload := p.GetPayload()
		out = append(out, Match{
			Score: score,
			Record: domain.HerbRecord{
				ID:             payload["record_id"].GetStringValue(),
				CommonName:     payload["common_name"].GetStringValue(),
				ScientificName: payload["scientific_name"].GetStringValue(),
				EmbeddingModel: payload["embedding_model"].GetStringValue(),
			},
		})
	}
	return out, nil
}

// Match returns the nearest point above the threshold. The returned record
// carries names only; uses text is looked up separately.
func (q *QdrantIndex) Match(ctx context.Context, query []float32, model string) (Match, bool, error) {
	out, err := q.search(ctx, query, model, 1)
	if err != nil || len(out) == 0 {
		return Match{}, false, err
	}
	return out[0], true, nil
}

func (q *QdrantIndex) TopK(ctx context.Context, query []float32, model string, k int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	return q.search(ctx, query, model, k)
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

var _ Index = (*QdrantIndex)(nil)
