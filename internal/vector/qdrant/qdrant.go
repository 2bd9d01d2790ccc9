// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

const payloadChunkID = "chunk_id"

// pointNamespace derives stable point UUIDs from chunk ids, since Qdrant only
// accepts unsigned integers or UUIDs as point ids.
var pointNamespace = uuid.MustParse("6f1c8a52-3d0e-4b5a-9c77-2a41e6d0b9f3")

type Config struct {
	// URL such as "http://localhost:6334"; the gRPC port defaults to 6334.
	URL            string
	APIKey         string
	CollectionName string
	Dimension      int
}

type Client struct {
	client         *qd.Client
	collectionName string
	vectorDim      int
	retryConfig    retry.Config
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "aia_knowledge"
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}

	port := 6334
	if parsedURL.Port() != "" {
		p, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	c, err := qd.NewClient(&qd.Config{
		Host:   parsedURL.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: parsedURL.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	logger.Info("Qdrant client initialized",
		zap.String("host", parsedURL.Hostname()),
		zap.Int("port", port),
		zap.String("collection", cfg.CollectionName),
	)

	return &Client{
		client:         c,
		collectionName: cfg.CollectionName,
		vectorDim:      cfg.Dimension,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       3 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
			Operation:      "qdrant",
		},
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnsureCollection creates a cosine-distance collection when missing.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", c.collectionName, err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(c.vectorDim),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", c.collectionName, err)
	}

	logger.Info("Qdrant collection created", zap.String("collection", c.collectionName))
	return nil
}

func (c *Client) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vector.CheckDimension(records, c.vectorDim); err != nil {
		return err
	}

	points := make([]*qd.PointStruct, 0, len(records))
	for _, r := range records {
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[payloadChunkID] = r.ID

		points = append(points, &qd.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qd.NewVectors(r.Vector...),
			Payload: qd.NewValueMap(payload),
		})
	}

	wait := true
	err := retry.Do(ctx, c.retryConfig, func() error {
		_, err := c.client.Upsert(ctx, &qd.UpsertPoints{
			CollectionName: c.collectionName,
			Points:         points,
			Wait:           &wait,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points to %s: %w", len(points), c.collectionName, err)
	}

	logger.Info("Chunks upserted into qdrant", zap.Int("count", len(points)))
	return nil
}

func (c *Client) Query(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if c.vectorDim > 0 && len(query) != c.vectorDim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(query), c.vectorDim)
	}

	limit := uint64(topK)
	points, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]*qd.ScoredPoint, error) {
		return c.client.Query(ctx, &qd.QueryPoints{
			CollectionName: c.collectionName,
			Query:          qd.NewQuery(query...),
			WithPayload:    qd.NewWithPayload(true),
			Limit:          &limit,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		md := make(map[string]string, len(p.Payload))
		id := ""
		for k, v := range p.Payload {
			if k == payloadChunkID {
				id = v.GetStringValue()
				continue
			}
			md[k] = v.GetStringValue()
		}
		matches = append(matches, vector.Match{ID: id, Score: p.Score, Metadata: md})
	}

	logger.Debug("Qdrant search completed", zap.Int("topK", topK), zap.Int("results", len(matches)))
	return matches, nil
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	wait := true
	err := retry.Do(ctx, c.retryConfig, func() error {
		_, err := c.client.Delete(ctx, &qd.DeletePoints{
			CollectionName: c.collectionName,
			Wait:           &wait,
			Points:         qd.NewPointsSelector(pointIDs...),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d points from %s: %w", len(ids), c.collectionName, err)
	}

	logger.Info("Chunks deleted from qdrant", zap.Int("count", len(ids)))
	return nil
}

func pointID(chunkID string) *qd.PointId {
	return qd.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(chunkID)).String())
}
