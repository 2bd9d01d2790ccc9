package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alpa-strategie/aia-backend/internal/metrics"
	"github.com/alpa-strategie/aia-backend/pkg/circuitbreaker"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

const DefaultModel = string(openai.SmallEmbedding3)

type Config struct {
	APIKey string
	// BaseURL overrides the provider endpoint, e.g. for an OpenAI-compatible gateway.
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type OpenAIClient struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	limiter     *rate.Limiter
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return err != nil && !retry.IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
		Operation:      "embedding",
	}

	logger.Info("Embedding client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientConfig.BaseURL),
	)

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		limiter:     limiter,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.model),
				},
			)
			if err != nil {
				metrics.EmbeddingRequests.WithLabelValues("error").Inc()
				return classify(fmt.Errorf("failed to generate embedding: %w", err))
			}
			metrics.EmbeddingRequests.WithLabelValues("success").Inc()

			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return retry.Permanent(errors.New("embedding response contained no vector"))
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)
			return nil
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		logger.Warn("Embedding request rejected", zap.String("breaker", c.cb.Name()), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", c.cb.Name(), err)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Embedding generated", zap.Int("dimension", len(embedding)), zap.Int("text_length", len(text)))

	return embedding, nil
}

// classify marks client errors that a retry cannot fix as permanent.
func classify(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return retry.Permanent(err)
	default:
		return err
	}
}
