package zilliz

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

const (
	fieldID       = "chunk_id"
	fieldVector   = "embedding"
	fieldText     = vector.MetaText
	fieldSource   = vector.MetaSource
	fieldCategory = vector.MetaCategory
	fieldSection  = vector.MetaSection
)

// maxTextBytes is the VarChar limit of the text field.
const maxTextBytes = 65535

var outputFields = []string{fieldID, fieldText, fieldSource, fieldCategory, fieldSection}

type Config struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	Dimension      int
}

// Client stores chunk vectors in a Zilliz Cloud or self-hosted Milvus
// collection.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	retryConfig    retry.Config
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
		zap.Int("dimension", cfg.Dimension),
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
			Operation:      "milvus",
		},
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

// EnsureCollection creates and loads the collection when it does not exist.
func (z *Client) EnsureCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Knowledge base chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", z.vectorDim),
				},
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": fmt.Sprintf("%d", maxTextBytes),
				},
			},
			{
				Name:     fieldSource,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldCategory,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldSection,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
		},
	}

	err = z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	err = z.client.CreateIndex(ctx, z.collectionName, fieldVector, idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = z.client.LoadCollection(ctx, z.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))

	return nil
}

func (z *Client) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vector.CheckDimension(records, z.vectorDim); err != nil {
		return err
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	texts := make([]string, len(records))
	sources := make([]string, len(records))
	categories := make([]string, len(records))
	sections := make([]string, len(records))

	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Vector
		texts[i] = truncateText(r.Metadata[fieldText], maxTextBytes)
		sources[i] = r.Metadata[fieldSource]
		categories[i] = r.Metadata[fieldCategory]
		sections[i] = r.Metadata[fieldSection]
	}

	err := retry.Do(ctx, z.retryConfig, func() error {
		_, err := z.client.Upsert(
			ctx,
			z.collectionName,
			"",
			entity.NewColumnVarChar(fieldID, ids),
			entity.NewColumnFloatVector(fieldVector, z.vectorDim, embeddings),
			entity.NewColumnVarChar(fieldText, texts),
			entity.NewColumnVarChar(fieldSource, sources),
			entity.NewColumnVarChar(fieldCategory, categories),
			entity.NewColumnVarChar(fieldSection, sections),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	err = z.client.Flush(ctx, z.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector DB", zap.Int("count", len(records)))

	return nil
}

func (z *Client) Query(ctx context.Context, queryEmbedding []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if z.vectorDim > 0 && len(queryEmbedding) != z.vectorDim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(queryEmbedding), z.vectorDim)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := retry.DoWithResult(ctx, z.retryConfig, func() ([]client.SearchResult, error) {
		return z.client.Search(
			ctx,
			z.collectionName,
			[]string{},
			"",
			outputFields,
			[]entity.Vector{entity.FloatVector(queryEmbedding)},
			fieldVector,
			entity.COSINE,
			topK,
			sp,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Match, 0, topK)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			md := make(map[string]string, len(outputFields)-1)
			var id string
			for _, name := range outputFields {
				col := sr.Fields.GetColumn(name)
				if col == nil {
					continue
				}
				raw, err := col.Get(i)
				if err != nil {
					continue
				}
				v, _ := raw.(string)
				if name == fieldID {
					id = v
					continue
				}
				md[name] = v
			}

			results = append(results, vector.Match{
				ID:       id,
				Score:    sr.Scores[i],
				Metadata: md,
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (z *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := retry.Do(ctx, z.retryConfig, func() error {
		return z.client.DeleteByPks(ctx, z.collectionName, "", entity.NewColumnVarChar(fieldID, ids))
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	logger.Info("Chunks deleted from vector DB", zap.Int("count", len(ids)))
	return nil
}

// truncateText cuts s to at most limit bytes without splitting a rune. Only
// the stored copy is cut; chunk IDs and vectors are unaffected.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	logger.Warn("Chunk text exceeds the vector DB field limit, storing a truncated copy",
		zap.Int("bytes", len(s)),
		zap.Int("limit", limit),
	)
	return s[:cut]
}
