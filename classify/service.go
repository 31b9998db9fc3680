// Package classify turns a region of a source GeoTIFF into a classified
// GeoTIFF in object storage.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"geoclassify/geo"
	"geoclassify/ml"
	"geoclassify/raster"
	"geoclassify/storage"
)

// ModelSource resolves model names to classifiers. ml.Registry implements it.
type ModelSource interface {
	Acquire(name string) (ml.PixelClassifier, func(), error)
	Names() []string
	Default() string
}

type Options struct {
	// TempDir holds spooled sources and rendered outputs; empty means os.TempDir.
	TempDir    string
	HTTPClient *http.Client
	// MaxVirtualBytes caps sources held in memory; zero is unlimited.
	MaxVirtualBytes int64
	// MaxReadValues caps width x height x bands of a read window; zero uses raster.DefaultMaxValues.
	MaxReadValues int64
	// Metrics receives per-request counters; nil disables them.
	Metrics Recorder
}

// Recorder is satisfied by monitoring.MetricsCollector.
type Recorder interface {
	IncrCounter(name string, value float64, labels map[string]string)
	Observe(name string, value float64, labels map[string]string)
}

type Service struct {
	store  storage.ObjectStore
	models ModelSource
	logger *zap.Logger
	opts   Options
}

func NewService(store storage.ObjectStore, models ModelSource, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Service{
		store:  store,
		models: models,
		logger: logger.Named("classify"),
		opts:   opts,
	}
}

type Request struct {
	// ROI is a GeoJSON document; its first feature's geometry is used.
	ROI    string
	Source Source
	// Model is a registry name; empty selects the default model.
	Model string
}

type Metadata struct {
	CRS    string     `json:"crs"`
	Bounds [4]float64 `json:"bounds"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	// Transform is the output grid's affine transform as a, b, c, d, e, f.
	Transform [6]float64 `json:"transform"`
	Model     string     `json:"model"`
}

type Result struct {
	Status    string   `json:"status"`
	ResultURL string   `json:"result_url"`
	Metadata  Metadata `json:"metadata"`
}

// Classify labels every pixel of the source raster inside the bounding box of
// the request's region and stores the labels as a single-band uint8 GeoTIFF.
func (s *Service) Classify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	modelName := req.Model
	if modelName == "" {
		modelName = s.models.Default()
	}

	res, err := s.classify(ctx, req, modelName, start)
	if m := s.opts.Metrics; m != nil {
		status := "success"
		if err != nil {
			status = strings.ReplaceAll(KindOf(err).String(), " ", "_")
		}
		m.IncrCounter("classifications_total", 1, map[string]string{"model": modelName, "status": status})
		m.Observe("classification_duration_seconds", time.Since(start).Seconds(), map[string]string{"model": modelName})
		if res != nil {
			pixels := float64(res.Metadata.Width * res.Metadata.Height)
			m.IncrCounter("classified_pixels_total", pixels, map[string]string{"model": modelName})
		}
	}
	return res, err
}

func (s *Service) classify(ctx context.Context, req Request, modelName string, start time.Time) (*Result, error) {
	model, release, err := s.models.Acquire(modelName)
	if err != nil {
		if errors.Is(err, ml.ErrModelNotFound) {
			return nil, newError(KindModelNotFound, "resolve model", err)
		}
		return nil, newError(KindProcessing, "load model", err)
	}
	defer release()

	if req.ROI == "" {
		return nil, newError(KindInputMalformed, "parse roi", errors.New("roi is required"))
	}
	roi, err := geo.ParseROI(req.ROI)
	if err != nil {
		return nil, newError(KindInputMalformed, "parse roi", err)
	}
	bounds := roi.Bounds()

	outputKey, err := storage.OutputKey(req.Source.Name())
	if err != nil {
		return nil, newError(KindInputMalformed, "output key", err)
	}

	src, err := s.openSource(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	defer src.release()

	ds, err := src.dataset()
	if err != nil {
		return nil, newError(KindSourceNotFound, "open raster", err)
	}
	defer ds.Close()
	ds.MaxValues = s.opts.MaxReadValues
	if err := checkCRS(roi, ds.CRS); err != nil {
		return nil, err
	}

	win, err := raster.WindowFromBounds(raster.Bounds{MinX: bounds[0], MinY: bounds[1], MaxX: bounds[2], MaxY: bounds[3]}, ds.Transform, ds.Width, ds.Height)
	if err != nil {
		if errors.Is(err, raster.ErrEmptyWindow) {
			return nil, newError(KindInputMalformed, "window", err)
		}
		return nil, newError(KindProcessing, "window", err)
	}
	block, err := ds.Read(win)
	if err != nil {
		if errors.Is(err, raster.ErrTooLarge) {
			return nil, newError(KindInputMalformed, "read window", err)
		}
		return nil, newError(KindProcessing, "read window", err)
	}
	transform := ds.WindowTransform(win)

	labels, err := ml.ClassifyBlock(model, block)
	if err != nil {
		return nil, newError(KindProcessing, "predict", err)
	}

	out := &raster.Image{
		Block:     labels,
		DataType:  raster.Uint8,
		Transform: transform,
		CRS:       ds.CRS,
	}
	if err := s.put(ctx, outputKey, out); err != nil {
		return nil, err
	}

	s.logger.Info("classified",
		zap.String("source", req.Source.Ref),
		zap.Stringer("source_kind", req.Source.Kind),
		zap.String("model", modelName),
		zap.Stringer("window", win),
		zap.String("key", outputKey),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Status:    "success",
		ResultURL: s.store.URL(outputKey),
		Metadata: Metadata{
			CRS:       ds.CRS.String(),
			Bounds:    bounds,
			Width:     win.Width,
			Height:    win.Height,
			Transform: [6]float64{transform.A, transform.B, transform.C, transform.D, transform.E, transform.F},
			Model:     modelName,
		},
	}, nil
}

// checkCRS rejects a region that declares an EPSG code other than the raster's.
// Regions without a CRS are taken to be in the raster's CRS.
func checkCRS(roi *geo.ROI, crs raster.CRS) error {
	if roi.CRSName == "" || crs.EPSG == 0 {
		return nil
	}
	code, ok := raster.ParseEPSG(roi.CRSName)
	if !ok || code == crs.EPSG {
		return nil
	}
	return newError(KindInputMalformed, "check crs",
		fmt.Errorf("roi is in EPSG:%d but the raster is in %s; reprojection is not supported", code, crs))
}

// put renders img to a temporary file and uploads it under key.
func (s *Service) put(ctx context.Context, key string, img *raster.Image) error {
	f, err := os.CreateTemp(s.opts.TempDir, "classified-*.tif")
	if err != nil {
		return newError(KindProcessing, "write raster", err)
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	if err := raster.WriteFile(name, img); err != nil {
		return newError(KindProcessing, "write raster", err)
	}
	out, err := os.Open(name)
	if err != nil {
		return newError(KindProcessing, "write raster", err)
	}
	defer out.Close()
	if err := s.store.Put(ctx, key, out, storage.ContentTypeGeoTIFF); err != nil {
		return newError(KindTransfer, "upload", err)
	}
	return nil
}

type UploadResult struct {
	Status string     `json:"status"`
	URL    string     `json:"url"`
	Key    string     `json:"key"`
	Bounds [4]float64 `json:"bounds"`
	CRS    string     `json:"crs"`
}

// Upload stores a GeoTIFF under the inputs prefix after checking it opens.
func (s *Service) Upload(ctx context.Context, filename string, body io.Reader) (*UploadResult, error) {
	key, err := storage.InputKey(filename)
	if err != nil {
		return nil, newError(KindInputMalformed, "upload", err)
	}

	f, err := os.CreateTemp(s.opts.TempDir, "upload-*.tif")
	if err != nil {
		return nil, newError(KindProcessing, "upload", err)
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()
	if _, err := io.Copy(f, body); err != nil {
		return nil, newError(KindTransfer, "upload", err)
	}

	ds, err := raster.OpenFile(f.Name())
	if err != nil {
		return nil, newError(KindInputMalformed, "open raster", err)
	}
	defer ds.Close()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, newError(KindProcessing, "upload", err)
	}
	if err := s.store.Put(ctx, key, f, storage.ContentTypeGeoTIFF); err != nil {
		return nil, newError(KindTransfer, "upload", err)
	}
	s.logger.Info("uploaded", zap.String("key", key), zap.Int("width", ds.Width), zap.Int("height", ds.Height))

	return &UploadResult{
		Status: "success",
		URL:    s.store.URL(key),
		Key:    key,
		Bounds: ds.Bounds().Array(),
		CRS:    ds.CRS.String(),
	}, nil
}

type ModelList struct {
	Default string   `json:"default"`
	Models  []string `json:"models"`
}

func (s *Service) Models() ModelList {
	return ModelList{Default: s.models.Default(), Models: s.models.Names()}
}
