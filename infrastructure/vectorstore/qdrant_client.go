package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"image-vector-index/domain"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// pointNamespace seeds the UUIDv5 point ids of non-numeric record ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("image-vector-index/records"))

// QdrantConfig configures the Qdrant-backed index.
type QdrantConfig struct {
	Address         string // host:port of the gRPC API
	Collection      string
	UploadBatchSize int // 0 uploads all records in one call
}

// QdrantClient implements the domain.VectorIndex interface using Qdrant.
type QdrantClient struct {
	points         qdrant.PointsClient
	collections    qdrant.CollectionsClient
	conn           *grpc.ClientConn
	collectionName string
	vectorName     string
	textField      string
	keyField       string
	batchSize      int
	logger         *slog.Logger
}

// NewQdrantClient connects to Qdrant at cfg.Address.
func NewQdrantClient(cfg QdrantConfig, logger *slog.Logger) (*QdrantClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("qdrant address is not configured")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name is not configured")
	}

	conn, err := grpc.NewClient(cfg.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}

	c := newQdrantClient(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), cfg, logger)
	c.conn = conn
	return c, nil
}

func newQdrantClient(points qdrant.PointsClient, collections qdrant.CollectionsClient, cfg QdrantConfig, logger *slog.Logger) *QdrantClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QdrantClient{
		points:         points,
		collections:    collections,
		collectionName: cfg.Collection,
		vectorName:     domain.VectorField,
		textField:      domain.TextField,
		keyField:       domain.KeyField,
		batchSize:      cfg.UploadBatchSize,
		logger:         logger,
	}
}

// Close releases the gRPC connection.
func (c *QdrantClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// EnsureIndex creates the collection if it doesn't exist, otherwise updates
// its HNSW profile. Payload indexes on the key and text fields are (re)created
// either way; Qdrant treats that as a no-op when they exist.
func (c *QdrantClient) EnsureIndex(ctx context.Context, schema domain.IndexSchema) error {
	if schema.Dimensions <= 0 {
		return fmt.Errorf("invalid vector dimensions: %d", schema.Dimensions)
	}
	if schema.Name != "" {
		c.collectionName = schema.Name
	}
	if schema.VectorField != "" {
		c.vectorName = schema.VectorField
	}
	if schema.TextField != "" {
		c.textField = schema.TextField
	}
	if schema.KeyField != "" {
		c.keyField = schema.KeyField
	}
	hnsw := &qdrant.HnswConfigDiff{}
	if schema.HNSWM > 0 {
		hnsw.M = proto.Uint64(uint64(schema.HNSWM))
	}
	if schema.HNSWEfConstruct > 0 {
		hnsw.EfConstruct = proto.Uint64(uint64(schema.HNSWEfConstruct))
	}

	info, err := c.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: c.collectionName,
	})
	if err != nil {
		c.logger.Info("collection does not exist, creating", "collection", c.collectionName, "error", err)

		_, err = c.collections.Create(ctx, &qdrant.CreateCollection{
			CollectionName: c.collectionName,
			VectorsConfig: &qdrant.VectorsConfig{Config: &qdrant.VectorsConfig_ParamsMap{
				ParamsMap: &qdrant.VectorParamsMap{Map: map[string]*qdrant.VectorParams{
					c.vectorName: {
						Size:     uint64(schema.Dimensions),
						Distance: qdrant.Distance_Cosine,
					},
				}},
			}},
			HnswConfig: hnsw,
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		c.logger.Info("collection created", "collection", c.collectionName, "dimensions", schema.Dimensions)
	} else {
		params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[c.vectorName]
		if params == nil {
			return fmt.Errorf("collection %s has no vector named %q", c.collectionName, c.vectorName)
		}
		if params.GetSize() != uint64(schema.Dimensions) {
			return fmt.Errorf("collection %s stores %d-dimensional vectors, want %d", c.collectionName, params.GetSize(), schema.Dimensions)
		}
		if _, err := c.collections.Update(ctx, &qdrant.UpdateCollection{
			CollectionName: c.collectionName,
			HnswConfig:     hnsw,
		}); err != nil {
			return fmt.Errorf("failed to update collection: %w", err)
		}
		c.logger.Info("collection updated", "collection", c.collectionName)
	}

	for _, field := range []string{c.keyField, c.textField} {
		_, err := c.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.collectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           proto.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	return nil
}

// Helper function to convert interface{} map to map[string]*qdrant.Value
func mapToPayload(data map[string]interface{}) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value)
	for key, val := range data {
		switch v := val.(type) {
		case string:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		case int:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
		case bool:
			payload[key] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
		default:
			return nil, fmt.Errorf("unsupported type for payload field '%s': %T", key, v)
		}
	}
	return payload, nil
}

// pointID maps a record id onto a Qdrant point id: numeric ids stay numeric,
// anything else becomes a deterministic UUID.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: n}}
	}
	u := uuid.NewSHA1(pointNamespace, []byte(id))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: u.String()}}
}

func pointIDString(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	}
	return ""
}

// Publish upserts records into the collection. Records without a vector are
// stored with an empty named-vector set so their descriptions stay searchable
// by filter. A rejected upsert yields one failed outcome per record in the call.
func (c *QdrantClient) Publish(ctx context.Context, records []domain.OutputRecord) ([]domain.PublishOutcome, error) {
	if len(records) == 0 {
		return nil, nil
	}

	size := c.batchSize
	if size <= 0 {
		size = len(records)
	}

	outcomes := make([]domain.PublishOutcome, 0, len(records))
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batch := records[start:end]

		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, r := range batch {
			if r.ID == "" {
				return nil, errors.New("record with empty id")
			}
			payload, err := mapToPayload(map[string]interface{}{
				c.keyField:  r.ID,
				c.textField: r.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to convert payload for record %s: %w", r.ID, err)
			}

			named := map[string]*qdrant.Vector{}
			if r.HasVector() {
				named[c.vectorName] = &qdrant.Vector{Data: r.Vector}
			}
			points = append(points, &qdrant.PointStruct{
				Id:      pointID(r.ID),
				Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vectors{Vectors: &qdrant.NamedVectors{Vectors: named}}},
				Payload: payload,
			})
		}

		code, msg := http.StatusOK, ""
		resp, err := c.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.collectionName,
			Points:         points,
			Wait:           proto.Bool(true), // ensure writes are acknowledged
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return outcomes, ctx.Err()
		case err != nil:
			code, msg = httpStatus(status.Code(err)), status.Convert(err).Message()
			c.logger.Warn("upsert rejected", "collection", c.collectionName, "records", len(batch), "status", code, "error", err)
		case resp.GetResult().GetStatus() == qdrant.UpdateStatus_Acknowledged:
			code = http.StatusAccepted
		case resp.GetResult().GetStatus() != qdrant.UpdateStatus_Completed:
			code, msg = http.StatusInternalServerError, "unexpected update status "+resp.GetResult().GetStatus().String()
		}
		for _, r := range batch {
			outcomes = append(outcomes, domain.PublishOutcome{ID: r.ID, StatusCode: code, Message: msg})
		}
	}
	return outcomes, nil
}

// Query searches for the records most similar to the given embedding.
func (c *QdrantClient) Query(ctx context.Context, embedding domain.Embedding, k int) ([]domain.QueryMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, errors.New("query vector is empty")
	}

	searchResult, err := c.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: c.collectionName,
		Vector:         embedding,
		VectorName:     proto.String(c.vectorName),
		Limit:          uint64(k),
		WithPayload: &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Include{
			Include: &qdrant.PayloadIncludeSelector{Fields: []string{c.keyField, c.textField}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points in Qdrant: %w", err)
	}

	matches := make([]domain.QueryMatch, 0, len(searchResult.GetResult()))
	for _, hit := range searchResult.GetResult() {
		payload := hit.GetPayload()
		id := payload[c.keyField].GetStringValue()
		if id == "" {
			id = pointIDString(hit.GetId())
		}
		matches = append(matches, domain.QueryMatch{
			ID:          id,
			Description: payload[c.textField].GetStringValue(),
			Score:       float64(hit.GetScore()),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// httpStatus maps a gRPC status code onto the HTTP status reported per record.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
