// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file; literal defaults fill
// whatever neither sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v2"

	"geoclassify/logging"
	"geoclassify/ml"
)

const (
	BackendS3  = "s3"
	BackendGCS = "gcs"
	BackendFS  = "fs"
)

type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Log     logging.Config `yaml:"log"`
	Storage StorageConfig  `yaml:"storage"`
	Models  ModelsConfig   `yaml:"models"`
	Source  SourceConfig   `yaml:"source"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT" env-default:"8000"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env-default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env-default:"120s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"*"`
	MaxUploadMB    int64         `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"512"`
	DisableMetrics bool          `yaml:"disable_metrics" env:"METRICS_DISABLED"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"s3"`
	Bucket   string `yaml:"bucket" env:"S3_BUCKET" env-default:"your-bucket"`
	Region   string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint string `yaml:"endpoint" env:"S3_ENDPOINT"`
	// PathStyle addresses buckets as host/bucket, as MinIO expects.
	PathStyle     bool   `yaml:"path_style" env:"S3_PATH_STYLE"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	// Private skips the public-read ACL on stored objects.
	Private  bool   `yaml:"private" env:"STORAGE_PRIVATE"`
	LocalDir string `yaml:"local_dir" env:"STORAGE_DIR" env-default:"data"`
	TempDir  string `yaml:"temp_dir" env:"TEMP_DIR"`
}

type ModelsConfig struct {
	// Default names the model used when a request names none. If the registry
	// has no entry of that name, one is built from Path and Type.
	Default     string                 `yaml:"default" env:"MODEL_NAME" env-default:"default"`
	Path        string                 `yaml:"path" env:"MODEL_PATH" env-default:"models/classifier_model.json"`
	Type        string                 `yaml:"type" env:"MODEL_TYPE" env-default:"decision_tree"`
	Registry    map[string]ml.Artifact `yaml:"registry"`
	CacheSize   int                    `yaml:"cache_size" env:"MODEL_CACHE_SIZE" env-default:"4"`
	Watch       bool                   `yaml:"watch" env:"MODEL_WATCH"`
	ONNXLibrary string                 `yaml:"onnxruntime_library" env:"ONNXRUNTIME_LIB"`
}

type SourceConfig struct {
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"SOURCE_FETCH_TIMEOUT" env-default:"60s"`
	MaxMemoryMB   int64         `yaml:"max_memory_mb" env:"SOURCE_MAX_MEMORY_MB" env-default:"1024"`
	// MaxReadValues caps width x height x bands of one read window.
	MaxReadValues int64         `yaml:"max_read_values" env:"SOURCE_MAX_READ_VALUES" env-default:"67108864"`
}

// Load reads path when it is non-empty, then applies the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("http.max_upload_mb must be positive"))
	}
	switch c.Storage.Backend {
	case BackendS3, BackendGCS:
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required for %s", c.Storage.Backend))
		}
	case BackendFS:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for fs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Models.CacheSize <= 0 {
		errs = append(errs, errors.New("models.cache_size must be positive"))
	}
	for name, a := range c.Registry().Artifacts {
		if a.Path == "" {
			errs = append(errs, fmt.Errorf("model %q has no path", name))
		}
		switch a.Type {
		case ml.TypeDecisionTree, ml.TypeONNX:
		default:
			errs = append(errs, fmt.Errorf("model %q has unknown type %q", name, a.Type))
		}
	}
	if c.Source.MaxReadValues <= 0 {
		errs = append(errs, errors.New("source.max_read_values must be positive"))
	}
	if c.Source.MaxMemoryMB < 0 {
		errs = append(errs, errors.New("source.max_memory_mb must not be negative"))
	}
	return errors.Join(errs...)
}

// Registry returns the model registry settings with the default entry filled in.
func (c *Config) Registry() ml.RegistryConfig {
	artifacts := make(map[string]ml.Artifact, len(c.Models.Registry)+1)
	for name, a := range c.Models.Registry {
		if a.Type == "" {
			a.Type = ml.TypeDecisionTree
		}
		artifacts[name] = a
	}
	if _, ok := artifacts[c.Models.Default]; !ok {
		artifacts[c.Models.Default] = ml.Artifact{Type: c.Models.Type, Path: c.Models.Path}
	}
	return ml.RegistryConfig{
		Default:     c.Models.Default,
		Artifacts:   artifacts,
		CacheSize:   c.Models.CacheSize,
		Watch:       c.Models.Watch,
		ONNXLibrary: c.Models.ONNXLibrary,
	}
}
