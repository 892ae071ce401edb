package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"privacyx/internal/config"
	"privacyx/internal/rag"
)

// Payload keys written at indexing time.
const (
	PayloadText   = "text"
	PayloadSource = "source"
)

// ErrCollectionMissing is returned by Connect when the corpus has not been indexed.
var ErrCollectionMissing = errors.New("qdrant collection does not exist")

// Index searches a pre-populated Qdrant collection.
type Index struct {
	Points     qdrant.PointsClient
	Collection string
	APIKey     string

	conn *grpc.ClientConn
}

// Connect dials Qdrant over gRPC, checks the service is healthy and that the
// configured collection exists.
func Connect(ctx context.Context, cfg config.IndexConfig) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.QdrantHost, cfg.QdrantPort)
	log := logrus.WithFields(logrus.Fields{
		"address":         addr,
		"collection_name": cfg.Collection,
	})
	log.Info("connecting to Qdrant gRPC service")

	creds := insecure.NewCredentials()
	if cfg.QdrantTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.WithError(err).Error("failed to connect to Qdrant")
		return nil, fmt.Errorf("did not connect: %w", err)
	}

	idx := &Index{
		Points:     qdrant.NewPointsClient(conn),
		Collection: cfg.Collection,
		APIKey:     cfg.QdrantAPIKey,
		conn:       conn,
	}
	collections := qdrant.NewCollectionsClient(conn)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = idx.withAPIKey(ctx)

	if _, err := collections.List(ctx, &qdrant.ListCollectionsRequest{}); err != nil {
		log.WithError(err).Error("qdrant health check failed")
		conn.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	if err := checkCollection(ctx, collections, cfg.Collection); err != nil {
		log.WithError(err).Error("qdrant collection check failed")
		conn.Close()
		return nil, err
	}

	log.Info("successfully connected to Qdrant")
	return idx, nil
}

func checkCollection(ctx context.Context, collections qdrant.CollectionsClient, name string) error {
	resp, err := collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return fmt.Errorf("could not get collection info: %w", err)
	}
	if resp.GetResult() == nil || !resp.GetResult().GetExists() {
		return fmt.Errorf("%w: %s", ErrCollectionMissing, name)
	}
	return nil
}

// Close releases the gRPC connection.
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

func (i *Index) withAPIKey(ctx context.Context) context.Context {
	if i.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", i.APIKey)
}

// Search returns at most k fragments nearest to vector. Missing payload
// fields come back as empty strings.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]rag.Fragment, error) {
	log := logrus.WithFields(logrus.Fields{
		"collection_name": i.Collection,
		"limit":           k,
	})
	if k < 1 {
		return nil, nil
	}

	resp, err := i.Points.Query(i.withAPIKey(ctx), &qdrant.QueryPoints{
		CollectionName: i.Collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		log.WithError(err).Error("qdrant search failed")
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	points := resp.GetResult()
	fragments := make([]rag.Fragment, 0, len(points))
	for _, p := range points {
		if len(fragments) == k {
			break
		}
		payload := p.GetPayload()
		fragments = append(fragments, rag.Fragment{
			Text:   payload[PayloadText].GetStringValue(),
			Source: payload[PayloadSource].GetStringValue(),
			Score:  float64(p.GetScore()),
		})
	}

	log.WithField("hits", len(fragments)).Debug("qdrant search complete")
	return fragments, nil
}
