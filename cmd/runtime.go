package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"image-vector-index/application"
	"image-vector-index/domain"
	"image-vector-index/infrastructure/config"
	"image-vector-index/infrastructure/embedding"
	"image-vector-index/infrastructure/logging"
	"image-vector-index/infrastructure/recordstore"
	"image-vector-index/infrastructure/resource"
	"image-vector-index/infrastructure/retry"
	"image-vector-index/infrastructure/vectorstore"
)

// runtime holds the validated config and logger shared by a command run.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

func (r *runtime) schema() domain.IndexSchema {
	s := domain.NewIndexSchema(r.cfg.Index.Name, r.cfg.Index.Dimensions)
	s.HNSWM = r.cfg.Index.HNSWM
	s.HNSWEfConstruct = r.cfg.Index.HNSWEfConstruct
	return s
}

func (r *runtime) corruptPolicy() (recordstore.CorruptPolicy, error) {
	return recordstore.ParsePolicy(r.cfg.Store.OnCorrupt)
}

func (r *runtime) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.cfg.Retry.MaxAttempts,
		MinWait:     r.cfg.Retry.MinWait,
		MaxWait:     r.cfg.Retry.MaxWait,
		Multiplier:  r.cfg.Retry.Multiplier,
	}
}

// embedder builds the vision client, which needs the endpoint and key.
func (r *runtime) embedder() (*embedding.VisionEmbeddingClient, error) {
	if err := r.cfg.ValidateVision(); err != nil {
		return nil, err
	}
	v := r.cfg.Vision
	opener, err := resource.NewOpener(resource.ObjectStoreConfig{
		Endpoint:  r.cfg.Objects.Endpoint,
		AccessKey: r.cfg.Objects.AccessKey,
		SecretKey: r.cfg.Objects.SecretKey,
		UseSSL:    r.cfg.Objects.UseSSL,
		Region:    r.cfg.Objects.Region,
	}, v.Timeout)
	if err != nil {
		return nil, err
	}
	return embedding.NewVisionEmbeddingClient(embedding.VisionConfig{
		Endpoint:          v.Endpoint,
		APIKey:            v.APIKey,
		APIVersion:        v.APIVersion,
		ModelVersion:      v.ModelVersion,
		Dimensions:        r.cfg.Index.Dimensions,
		Timeout:           v.Timeout,
		RequestsPerSecond: v.RequestsPerSecond,
	}, opener, r.retryPolicy(), r.logger)
}

// index opens the configured backend. For the memory backend the store is
// loaded and published into a fresh index so it can be queried.
func (r *runtime) index(backend string) (domain.VectorIndex, func() error, error) {
	if backend == "" {
		backend = r.cfg.Index.Backend
	}
	switch backend {
	case "qdrant":
		c, err := vectorstore.NewQdrantClient(vectorstore.QdrantConfig{
			Address:         r.cfg.Index.Address,
			Collection:      r.cfg.Index.Name,
			UploadBatchSize: r.cfg.Index.UploadBatchSize,
		}, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "memory":
		return vectorstore.NewMemoryIndex(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend %q (want qdrant or memory)", backend)
	}
}

func (r *runtime) publisher(index domain.VectorIndex) *application.PublishingService {
	return application.NewPublishingService(index, r.schema(), r.logger)
}

func (r *runtime) loadStore() (*recordstore.LoadResult, error) {
	policy, err := r.corruptPolicy()
	if err != nil {
		return nil, err
	}
	return recordstore.Load(r.cfg.Store.Path, policy, r.logger)
}
