package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"image-vector-index/domain"
	"image-vector-index/infrastructure/resource"
	"image-vector-index/infrastructure/retry"
)

const (
	// DefaultAPIVersion is the retrieval API version the request shape below targets.
	DefaultAPIVersion = "2023-02-01-preview"
	// DefaultModelVersion selects the newest multimodal embedding model.
	DefaultModelVersion = "latest"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	maxResponseSize       = 4 << 20
)

// VisionConfig is the explicit configuration of the vision embedding client.
type VisionConfig struct {
	Endpoint     string        // e.g. https://myvision.cognitiveservices.azure.com
	APIKey       string        // subscription key
	APIVersion   string        // api-version query parameter
	ModelVersion string        // model-version query parameter
	Dimensions   int           // expected vector length; 0 disables the check
	Timeout      time.Duration // per-request timeout
	// RequestsPerSecond paces outbound calls, retries included. 0 means unlimited.
	RequestsPerSecond float64
}

// VisionEmbeddingClient implements domain.ImageEmbedder and domain.TextEmbedder
// against the vision retrieval API (vectorizeImage / vectorizeText).
type VisionEmbeddingClient struct {
	cfg        VisionConfig
	baseURL    string
	httpClient *http.Client
	opener     resource.Opener
	policy     retry.Policy
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewVisionEmbeddingClient creates a new VisionEmbeddingClient.
func NewVisionEmbeddingClient(cfg VisionConfig, opener resource.Opener, policy retry.Policy, logger *slog.Logger) (*VisionEmbeddingClient, error) {
	var missing []string
	if cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "api key")
	}
	if opener == nil {
		missing = append(missing, "resource opener")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("vision client is not configured: missing %s", strings.Join(missing, ", "))
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = DefaultModelVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &VisionEmbeddingClient{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/computervision/retrieval",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		opener:     opener,
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Info("embedding call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
	}
	c.policy = policy
	return c, nil
}

// EmbedImage reads the resource at locator and returns its image embedding.
func (c *VisionEmbeddingClient) EmbedImage(ctx context.Context, locator string) (domain.Embedding, error) {
	var res *resource.Resource
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.opener.Open(ctx, locator)
		return err
	})
	if err != nil {
		return nil, err
	}

	var vec domain.Embedding
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = c.vectorize(ctx, "vectorizeImage", res.ContentType, res.Data)
		return err
	})
	return vec, err
}

// EmbedText returns the embedding of text in the image vector space.
func (c *VisionEmbeddingClient) EmbedText(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Permanent("vectorizeText", errors.New("cannot embed empty text"))
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var vec domain.Embedding
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = c.vectorize(ctx, "vectorizeText", "application/json", body)
		return err
	})
	return vec, err
}

// vectorize issues exactly one request and classifies its failure.
func (c *VisionEmbeddingClient) vectorize(ctx context.Context, op, contentType string, body []byte) (domain.Embedding, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("api-version", c.cfg.APIVersion)
	params.Set("model-version", c.cfg.ModelVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+":"+op+"?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, domain.Permanent(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(subscriptionKeyHeader, c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Transient(op, fmt.Errorf("failed to make API request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, domain.Transient(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := fmt.Errorf("API error (status code %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			apiErr = fmt.Errorf("%w (retry after %s)", apiErr, ra)
		}
		if isTransientStatus(resp.StatusCode) {
			return nil, domain.Transient(op, apiErr)
		}
		return nil, domain.Permanent(op, apiErr)
	}

	var parsed struct {
		ModelVersion string     `json:"modelVersion"`
		Vector       *[]float32 `json:"vector"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, domain.Permanent(op, fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Vector == nil || len(*parsed.Vector) == 0 {
		return nil, domain.Permanent(op, errors.New("response missing vector"))
	}
	vec := domain.Embedding(*parsed.Vector)
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, domain.Permanent(op, fmt.Errorf("vector has %d dimensions, want %d", len(vec), c.cfg.Dimensions))
	}
	return vec, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
