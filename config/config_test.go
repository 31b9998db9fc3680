package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8000 {
		t.Fatalf("expected port 8000, got %d", cfg.HTTP.Port)
	}
	if cfg.Storage.Backend != BackendS3 || cfg.Storage.Bucket != "your-bucket" || cfg.Storage.Region != "us-east-1" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.HTTP.WriteTimeout != 120*time.Second || cfg.Source.FetchTimeout != time.Minute {
		t.Fatalf("unexpected timeouts %+v %+v", cfg.HTTP, cfg.Source)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}

	reg := cfg.Registry()
	if reg.Default != "default" {
		t.Fatalf("unexpected default model %q", reg.Default)
	}
	a, ok := reg.Artifacts["default"]
	if !ok || a.Path != "models/classifier_model.json" || a.Type != "decision_tree" {
		t.Fatalf("unexpected default artifact %+v", a)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http:
  port: 9000
storage:
  backend: fs
  local_dir: /srv/rasters
models:
  default: XGBoost
  registry:
    XGBoost:
      type: onnx
      path: models/xgb.onnx
      output_name: output_label
    Random Forest:
      path: models/rf.json
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "8080")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected env to override port, got %d", cfg.HTTP.Port)
	}
	if cfg.Storage.Backend != BackendFS || cfg.Storage.LocalDir != "/srv/rasters" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.Region != "eu-west-1" {
		t.Fatalf("expected region from env, got %q", cfg.Storage.Region)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected file log level, got %q", cfg.Log.Level)
	}

	reg := cfg.Registry()
	if len(reg.Artifacts) != 2 {
		t.Fatalf("expected the file registry only, got %v", reg.Artifacts)
	}
	if a := reg.Artifacts["XGBoost"]; a.Type != "onnx" || a.OutputName != "output_label" {
		t.Fatalf("unexpected XGBoost artifact %+v", a)
	}
	if a := reg.Artifacts["Random Forest"]; a.Type != "decision_tree" {
		t.Fatalf("expected default type, got %+v", a)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"STORAGE_BACKEND":  "ftp",
		"PORT":             "70000",
		"MODEL_TYPE":       "svm",
		"MODEL_CACHE_SIZE": "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "absent.yaml") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestMetricsDisabledFromEnvironment(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.DisableMetrics {
		t.Fatal("metrics should be on by default")
	}

	t.Setenv("METRICS_DISABLED", "true")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HTTP.DisableMetrics {
		t.Fatal("expected METRICS_DISABLED to turn metrics off")
	}
}

func TestReadValueLimit(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.MaxReadValues != 64<<20 {
		t.Fatalf("unexpected default read limit %d", cfg.Source.MaxReadValues)
	}

	t.Setenv("SOURCE_MAX_READ_VALUES", "0")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "max_read_values") {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
