package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestKeys(t *testing.T) {
	cases := []struct {
		source string
		output string
		input  string
	}{
		{"scenes/2023/sentinel.tif", "outputs/classified_sentinel.tif", "inputs/sentinel.tif"},
		{"sentinel.tif", "outputs/classified_sentinel.tif", "inputs/sentinel.tif"},
		{`C:\data\scene.tif`, "outputs/classified_scene.tif", "inputs/scene.tif"},
		{"/vsis3/bucket/dir/scene.tif/", "outputs/classified_scene.tif", "inputs/scene.tif"},
		// Decomposed e + combining acute becomes the composed form.
		{"terre\u0301.tif", "outputs/classified_terr\u00e9.tif", "inputs/terr\u00e9.tif"},
	}
	for _, tc := range cases {
		out, err := OutputKey(tc.source)
		if err != nil || out != tc.output {
			t.Errorf("OutputKey(%q) = %q, %v; want %q", tc.source, out, err, tc.output)
		}
		in, err := InputKey(tc.source)
		if err != nil || in != tc.input {
			t.Errorf("InputKey(%q) = %q, %v; want %q", tc.source, in, err, tc.input)
		}
	}

	for _, bad := range []string{"", "/", "..", "dir/.."} {
		if _, err := OutputKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("OutputKey(%q): expected ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestCleanKey(t *testing.T) {
	good := map[string]string{
		"inputs/a.tif":    "inputs/a.tif",
		"/outputs//b.tif": "outputs/b.tif",
		"a/./b/../c.tif":  "a/c.tif",
	}
	for key, want := range good {
		if got, err := CleanKey(key); err != nil || got != want {
			t.Errorf("CleanKey(%q) = %q, %v; want %q", key, got, err, want)
		}
	}
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "."} {
		if _, err := CleanKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("CleanKey(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestFSStorePutGet(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root, "http://localhost:8000/files/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "outputs/classified_a.tif", strings.NewReader("pixels"), ContentTypeGeoTIFF); err != nil {
		t.Fatalf("put: %v", err)
	}
	r, err := store.Get(ctx, "outputs/classified_a.tif")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "pixels" {
		t.Fatalf("unexpected content %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "outputs"))
	if len(entries) != 1 {
		t.Fatalf("expected only the stored object, found %d entries", len(entries))
	}

	if got := store.URL("outputs/classified a.tif"); got != "http://localhost:8000/files/outputs/classified%20a.tif" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestFSStoreErrors(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Get(ctx, "inputs/missing.tif"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "../outside.tif"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := store.Put(ctx, "../outside.tif", strings.NewReader("x"), ContentTypeGeoTIFF); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestS3URL(t *testing.T) {
	s := &S3Store{cfg: S3Config{Bucket: "your-bucket", Region: "us-east-1"}}
	if got := s.URL("outputs/classified_a.tif"); got != "https://your-bucket.s3.us-east-1.amazonaws.com/outputs/classified_a.tif" {
		t.Fatalf("unexpected url %s", got)
	}
	s.cfg.PublicBaseURL = "https://cdn.example.com/rasters/"
	if got := s.URL("outputs/classified_a.tif"); got != "https://cdn.example.com/rasters/outputs/classified_a.tif" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestGCSURL(t *testing.T) {
	s := &GCSStore{cfg: GCSConfig{Bucket: "scenes"}}
	if got := s.URL("inputs/a.tif"); got != "https://storage.googleapis.com/scenes/inputs/a.tif" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestIsS3NotFound(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&types.NoSuchKey{}, true},
		{fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "NotFound"}), true},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{&smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := isS3NotFound(tc.err); got != tc.want {
			t.Errorf("isS3NotFound(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestS3GetMapsMissingObjects(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/scenes/missing.tif":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
		case "/scenes/hidden.tif":
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InvalidArgument</Code><Message>bad request</Message></Error>`)
		}
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), S3Config{Bucket: "scenes", Region: "us-east-1", Endpoint: srv.URL, PathStyle: true})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"missing.tif", "hidden.tif"} {
		if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%s): expected ErrNotFound, got %v", key, err)
		}
	}
	if _, err := store.Get(context.Background(), "broken.tif"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected a plain failure for a bad request, got %v", err)
	}
}
