// Package config loads the explicit configuration handed to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "imgvec.yaml"

// Vision configures the embedding API.
type Vision struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	APIVersion        string        `yaml:"api_version"`
	ModelVersion      string        `yaml:"model_version"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// Retry configures backoff around each embedding call.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MinWait     time.Duration `yaml:"min_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// Index configures the vector index.
type Index struct {
	Backend         string `yaml:"backend"` // qdrant or memory
	Address         string `yaml:"address"`
	Name            string `yaml:"name"`
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEfConstruct int    `yaml:"hnsw_ef_construct"`
	UploadBatchSize int    `yaml:"upload_batch_size"`
}

// Store configures the durable record store.
type Store struct {
	Path      string `yaml:"path"`
	OnCorrupt string `yaml:"on_corrupt"` // abort or skip
}

// Objects configures access to s3:// locators.
type Objects struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the in-memory representation of imgvec.yaml.
type Config struct {
	Vision  Vision  `yaml:"vision"`
	Retry   Retry   `yaml:"retry"`
	Index   Index   `yaml:"index"`
	Store   Store   `yaml:"store"`
	Objects Objects `yaml:"objects"`
	Logging Logging `yaml:"logging"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Vision: Vision{
			APIVersion:   "2023-02-01-preview",
			ModelVersion: "latest",
			Timeout:      30 * time.Second,
		},
		Retry: Retry{
			MaxAttempts: 15,
			MinWait:     15 * time.Second,
			MaxWait:     60 * time.Second,
			Multiplier:  1,
		},
		Index: Index{
			Backend:         "qdrant",
			Address:         "localhost:6334",
			Name:            "image-vectors",
			Dimensions:      1024,
			HNSWM:           4,
			HNSWEfConstruct: 400,
		},
		Store: Store{
			Path:      "image_vectors.jsonl",
			OnCorrupt: "abort",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (a missing file at the default path is not an error), loads
// .env.local and .env into the process environment without overriding it, and
// applies IMGVEC_* environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("cannot load %s: %w", f, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"IMGVEC_VISION_ENDPOINT":      &c.Vision.Endpoint,
		"IMGVEC_VISION_API_KEY":       &c.Vision.APIKey,
		"IMGVEC_VISION_API_VERSION":   &c.Vision.APIVersion,
		"IMGVEC_VISION_MODEL_VERSION": &c.Vision.ModelVersion,
		"IMGVEC_INDEX_BACKEND":        &c.Index.Backend,
		"IMGVEC_QDRANT_ADDR":          &c.Index.Address,
		"IMGVEC_INDEX_NAME":           &c.Index.Name,
		"IMGVEC_STORE_PATH":           &c.Store.Path,
		"IMGVEC_S3_ENDPOINT":          &c.Objects.Endpoint,
		"IMGVEC_S3_ACCESS_KEY":        &c.Objects.AccessKey,
		"IMGVEC_S3_SECRET_KEY":        &c.Objects.SecretKey,
		"IMGVEC_S3_REGION":            &c.Objects.Region,
		"IMGVEC_LOG_LEVEL":            &c.Logging.Level,
		"IMGVEC_LOG_FORMAT":           &c.Logging.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("IMGVEC_INDEX_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IMGVEC_INDEX_DIMENSIONS %q: %w", v, err)
		}
		c.Index.Dimensions = n
	}
	if v := os.Getenv("IMGVEC_S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid IMGVEC_S3_USE_SSL %q: %w", v, err)
		}
		c.Objects.UseSSL = b
	}
	return nil
}

// Validate reports every missing or invalid field needed for the index and store.
func (c *Config) Validate() error {
	var problems []string
	if c.Index.Name == "" {
		problems = append(problems, "index.name is required")
	}
	if c.Index.Dimensions <= 0 {
		problems = append(problems, "index.dimensions must be positive")
	}
	switch c.Index.Backend {
	case "qdrant":
		if c.Index.Address == "" {
			problems = append(problems, "index.address is required for the qdrant backend")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("index.backend %q is not one of qdrant, memory", c.Index.Backend))
	}
	if c.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}
	if c.Store.OnCorrupt != "" && c.Store.OnCorrupt != "abort" && c.Store.OnCorrupt != "skip" {
		problems = append(problems, fmt.Sprintf("store.on_corrupt %q is not one of abort, skip", c.Store.OnCorrupt))
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxWait < c.Retry.MinWait {
		problems = append(problems, "retry.max_wait must not be below retry.min_wait")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// ValidateVision reports missing embedding API settings.
func (c *Config) ValidateVision() error {
	var missing []string
	if c.Vision.Endpoint == "" {
		missing = append(missing, "vision.endpoint (IMGVEC_VISION_ENDPOINT)")
	}
	if c.Vision.APIKey == "" {
		missing = append(missing, "vision.api_key (IMGVEC_VISION_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("embedding API is not configured: set %s", strings.Join(missing, ", "))
	}
	return nil
}
