package vectorstore

import (
	"context"
	"net/http"
	"testing"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"image-vector-index/domain"
)

// fakePoints overrides the PointsClient calls the index uses; any other call panics.
type fakePoints struct {
	qdrant.PointsClient
	upserts     []*qdrant.UpsertPoints
	upsertErr   error
	search      *qdrant.SearchPoints
	hits        []*qdrant.ScoredPoint
	fieldIndexs []string
}

func (f *fakePoints) Upsert(_ context.Context, in *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

func (f *fakePoints) Search(_ context.Context, in *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	f.search = in
	return &qdrant.SearchResponse{Result: f.hits}, nil
}

func (f *fakePoints) CreateFieldIndex(_ context.Context, in *qdrant.CreateFieldIndexCollection, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.fieldIndexs = append(f.fieldIndexs, in.GetFieldName())
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

type fakeCollections struct {
	qdrant.CollectionsClient
	existing *qdrant.CollectionInfo
	created  *qdrant.CreateCollection
	updated  *qdrant.UpdateCollection
}

func (f *fakeCollections) Get(_ context.Context, in *qdrant.GetCollectionInfoRequest, _ ...grpc.CallOption) (*qdrant.GetCollectionInfoResponse, error) {
	if f.existing == nil {
		return nil, status.Errorf(codes.NotFound, "collection %s not found", in.GetCollectionName())
	}
	return &qdrant.GetCollectionInfoResponse{Result: f.existing}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.created = in
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Update(_ context.Context, in *qdrant.UpdateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.updated = in
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func collectionInfo(size uint64) *qdrant.CollectionInfo {
	return &qdrant.CollectionInfo{Config: &qdrant.CollectionConfig{Params: &qdrant.CollectionParams{
		VectorsConfig: &qdrant.VectorsConfig{Config: &qdrant.VectorsConfig_ParamsMap{
			ParamsMap: &qdrant.VectorParamsMap{Map: map[string]*qdrant.VectorParams{
				domain.VectorField: {Size: size, Distance: qdrant.Distance_Cosine},
			}},
		}},
	}}}
}

func TestQdrant_EnsureIndexCreatesMissingCollection(t *testing.T) {
	points, cols := &fakePoints{}, &fakeCollections{}
	c := newQdrantClient(points, cols, QdrantConfig{Collection: "images"}, nil)

	require.NoError(t, c.EnsureIndex(context.Background(), domain.NewIndexSchema("images", 1024)))

	require.NotNil(t, cols.created)
	assert.Equal(t, "images", cols.created.GetCollectionName())
	params := cols.created.GetVectorsConfig().GetParamsMap().GetMap()[domain.VectorField]
	require.NotNil(t, params)
	assert.Equal(t, uint64(1024), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
	assert.Equal(t, uint64(4), cols.created.GetHnswConfig().GetM())
	assert.Equal(t, uint64(400), cols.created.GetHnswConfig().GetEfConstruct())
	assert.Nil(t, cols.updated)
	assert.Equal(t, []string{domain.KeyField, domain.TextField}, points.fieldIndexs)
}

func TestQdrant_EnsureIndexUpdatesExistingCollection(t *testing.T) {
	cols := &fakeCollections{existing: collectionInfo(1024)}
	c := newQdrantClient(&fakePoints{}, cols, QdrantConfig{Collection: "images"}, nil)

	require.NoError(t, c.EnsureIndex(context.Background(), domain.NewIndexSchema("images", 1024)))
	assert.Nil(t, cols.created)
	require.NotNil(t, cols.updated)
	assert.Equal(t, uint64(4), cols.updated.GetHnswConfig().GetM())
}

func TestQdrant_EnsureIndexRejectsDimensionChange(t *testing.T) {
	cols := &fakeCollections{existing: collectionInfo(512)}
	c := newQdrantClient(&fakePoints{}, cols, QdrantConfig{Collection: "images"}, nil)

	err := c.EnsureIndex(context.Background(), domain.NewIndexSchema("images", 1024))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "512")
	assert.Nil(t, cols.updated)
}

func TestQdrant_PublishBuildsPoints(t *testing.T) {
	points := &fakePoints{}
	c := newQdrantClient(points, &fakeCollections{}, QdrantConfig{Collection: "images"}, nil)

	outcomes, err := c.Publish(context.Background(), []domain.OutputRecord{
		{ID: "0", Vector: domain.Embedding{1, 0}, Description: "a"},
		{ID: "1", Description: "b"},
		{ID: "img-x", Vector: domain.Embedding{0, 1}, Description: "x"},
	})
	require.NoError(t, err)
	require.Len(t, points.upserts, 1)

	ps := points.upserts[0].GetPoints()
	require.Len(t, ps, 3)
	assert.Equal(t, uint64(0), ps[0].GetId().GetNum())
	assert.Equal(t, []float32{1, 0}, ps[0].GetVectors().GetVectors().GetVectors()[domain.VectorField].GetData())
	assert.Equal(t, "a", ps[0].GetPayload()[domain.TextField].GetStringValue())
	assert.Equal(t, "0", ps[0].GetPayload()[domain.KeyField].GetStringValue())

	assert.Empty(t, ps[1].GetVectors().GetVectors().GetVectors())
	assert.Equal(t, "b", ps[1].GetPayload()[domain.TextField].GetStringValue())

	assert.NotEmpty(t, ps[2].GetId().GetUuid())
	assert.Equal(t, pointID("img-x").GetUuid(), ps[2].GetId().GetUuid())

	for _, o := range outcomes {
		assert.Equal(t, http.StatusOK, o.StatusCode)
	}
	assert.Equal(t, []string{"0", "1", "img-x"}, []string{outcomes[0].ID, outcomes[1].ID, outcomes[2].ID})
}

func TestQdrant_PublishChunksUploads(t *testing.T) {
	points := &fakePoints{}
	c := newQdrantClient(points, &fakeCollections{}, QdrantConfig{Collection: "images", UploadBatchSize: 2}, nil)

	recs := make([]domain.OutputRecord, 5)
	for i := range recs {
		recs[i] = domain.OutputRecord{ID: string(rune('0' + i)), Vector: domain.Embedding{1, 0}}
	}
	outcomes, err := c.Publish(context.Background(), recs)
	require.NoError(t, err)
	assert.Len(t, points.upserts, 3)
	assert.Len(t, outcomes, 5)
}

func TestQdrant_PublishReportsRejectionPerRecord(t *testing.T) {
	points := &fakePoints{upsertErr: status.Error(codes.InvalidArgument, "wrong vector dimension")}
	c := newQdrantClient(points, &fakeCollections{}, QdrantConfig{Collection: "images"}, nil)

	outcomes, err := c.Publish(context.Background(), []domain.OutputRecord{
		{ID: "0", Vector: domain.Embedding{1, 0, 0}},
		{ID: "1", Vector: domain.Embedding{1, 0, 0}},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, http.StatusBadRequest, o.StatusCode)
		assert.Equal(t, "wrong vector dimension", o.Message)
	}
}

func TestQdrant_Query(t *testing.T) {
	points := &fakePoints{hits: []*qdrant.ScoredPoint{
		{
			Id:    &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: 1}},
			Score: 0.5,
			Payload: map[string]*qdrant.Value{
				domain.KeyField:  {Kind: &qdrant.Value_StringValue{StringValue: "1"}},
				domain.TextField: {Kind: &qdrant.Value_StringValue{StringValue: "b"}},
			},
		},
		{
			Id:    &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: 0}},
			Score: 0.9,
			Payload: map[string]*qdrant.Value{
				domain.TextField: {Kind: &qdrant.Value_StringValue{StringValue: "a"}},
			},
		},
	}}
	c := newQdrantClient(points, &fakeCollections{}, QdrantConfig{Collection: "images"}, nil)

	matches, err := c.Query(context.Background(), domain.Embedding{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, domain.QueryMatch{ID: "0", Description: "a", Score: float64(float32(0.9))}, matches[0])

	assert.Equal(t, domain.VectorField, points.search.GetVectorName())
	assert.Equal(t, uint64(1), points.search.GetLimit())
	assert.Equal(t, []string{domain.KeyField, domain.TextField}, points.search.GetWithPayload().GetInclude().GetFields())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(codes.Unavailable))
	assert.Equal(t, http.StatusTooManyRequests, httpStatus(codes.ResourceExhausted))
	assert.Equal(t, http.StatusNotFound, httpStatus(codes.NotFound))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(codes.Internal))
}
