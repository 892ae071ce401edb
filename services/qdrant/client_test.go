package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"privacyx/internal/rag"
)

type fakePoints struct {
	qdrant.PointsClient
	req    *qdrant.QueryPoints
	md     metadata.MD
	result []*qdrant.ScoredPoint
	err    error
}

func (f *fakePoints) Query(ctx context.Context, in *qdrant.QueryPoints, _ ...grpc.CallOption) (*qdrant.QueryResponse, error) {
	f.req = in
	f.md, _ = metadata.FromOutgoingContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &qdrant.QueryResponse{Result: f.result}, nil
}

func point(text, source string, score float32) *qdrant.ScoredPoint {
	payload := map[string]any{}
	if text != "" {
		payload[PayloadText] = text
	}
	if source != "" {
		payload[PayloadSource] = source
	}
	return &qdrant.ScoredPoint{Payload: qdrant.NewValueMap(payload), Score: score}
}

func TestIndex_Search(t *testing.T) {
	fake := &fakePoints{result: []*qdrant.ScoredPoint{
		point("A text", "a.pdf", 0.91),
		point("B text", "b.pdf", 0.87),
		point("C text", "c.pdf", 0.80),
	}}
	idx := &Index{Points: fake, Collection: "vdpo_documents"}

	fragments, err := idx.Search(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)

	require.Len(t, fragments, 3)
	assert.Equal(t, "A text", fragments[0].Text)
	assert.Equal(t, "a.pdf", fragments[0].Source)
	assert.InDelta(t, 0.91, fragments[0].Score, 1e-6)
	assert.Equal(t, "C text", fragments[2].Text)

	assert.Equal(t, "vdpo_documents", fake.req.CollectionName)
	assert.Equal(t, uint64(5), fake.req.GetLimit())
	assert.Equal(t, []float32{0.1, 0.2}, fake.req.GetQuery().GetNearest().GetDense().GetData())
	assert.True(t, fake.req.GetWithPayload().GetEnable())
}

func TestIndex_SearchMissingPayload(t *testing.T) {
	fake := &fakePoints{result: []*qdrant.ScoredPoint{
		point("", "", 0.5),
		{Score: 0.4},
	}}
	idx := &Index{Points: fake, Collection: "c"}

	fragments, err := idx.Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)

	assert.Equal(t, []rag.Fragment{
		{Text: "", Source: "", Score: 0.5},
		{Text: "", Source: "", Score: float64(float32(0.4))},
	}, fragments)
}

func TestIndex_SearchCapsAtK(t *testing.T) {
	fake := &fakePoints{result: []*qdrant.ScoredPoint{
		point("1", "", 0.9), point("2", "", 0.8), point("3", "", 0.7),
	}}
	idx := &Index{Points: fake, Collection: "c"}

	fragments, err := idx.Search(context.Background(), []float32{1}, 2)
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
}

func TestIndex_SearchUnavailable(t *testing.T) {
	boom := errors.New("rpc error: code = Unavailable")
	idx := &Index{Points: &fakePoints{err: boom}, Collection: "c"}

	fragments, err := idx.Search(context.Background(), []float32{1}, 5)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, fragments)
}

func TestIndex_SearchSendsAPIKey(t *testing.T) {
	fake := &fakePoints{}
	idx := &Index{Points: fake, Collection: "c", APIKey: "k-123"}

	_, err := idx.Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"k-123"}, fake.md.Get("api-key"))
}

type fakeCollections struct {
	qdrant.CollectionsClient
	exists bool
	err    error
}

func (f *fakeCollections) CollectionExists(_ context.Context, _ *qdrant.CollectionExistsRequest, _ ...grpc.CallOption) (*qdrant.CollectionExistsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: f.exists}}, nil
}

func TestCheckCollection(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, checkCollection(ctx, &fakeCollections{exists: true}, "c"))
	assert.ErrorIs(t, checkCollection(ctx, &fakeCollections{exists: false}, "c"), ErrCollectionMissing)

	boom := errors.New("down")
	assert.ErrorIs(t, checkCollection(ctx, &fakeCollections{err: boom}, "c"), boom)
}
