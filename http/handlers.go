package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"geoclassify/classify"
)

// maxFormMemory 多部分表单在内存中保留的上限，超出部分写入临时文件
const maxFormMemory = 32 << 20

// ClassificationService 分类服务接口
type ClassificationService interface {
	Classify(ctx context.Context, req classify.Request) (*classify.Result, error)
	Upload(ctx context.Context, filename string, body io.Reader) (*classify.UploadResult, error)
	Models() classify.ModelList
}

// Handler 分类接口处理器
type Handler struct {
	svc    ClassificationService
	logger *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(svc ClassificationService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("handler")}
}

// Register 注册路由
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /models", h.handleModels)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /upload", h.handleUpload)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.svc.Models())
}

// sourceFields 源栅格字段，按优先顺序列出；别名来自前端
var sourceFields = []struct {
	names []string
	kind  classify.SourceKind
}{
	{[]string{"input_tif_key"}, classify.SourceKey},
	{[]string{"input_vsi_key"}, classify.SourceVirtual},
	{[]string{"input_tif_url", "tif_url"}, classify.SourceURL},
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.writeFormError(w, r, err)
		return
	}

	var sources []classify.Source
	for _, f := range sourceFields {
		if v := firstValue(r, f.names...); v != "" {
			sources = append(sources, classify.Source{Kind: f.kind, Ref: v})
		}
	}
	switch len(sources) {
	case 0:
		h.writeError(w, r, http.StatusBadRequest, errors.New("one of input_tif_key, input_vsi_key or input_tif_url is required"))
		return
	case 1:
	default:
		h.writeError(w, r, http.StatusBadRequest, errors.New("only one of input_tif_key, input_vsi_key or input_tif_url may be given"))
		return
	}

	roi := r.PostFormValue("roi")
	if strings.TrimSpace(roi) == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("roi is required"))
		return
	}

	res, err := h.svc.Classify(r.Context(), classify.Request{
		ROI:    roi,
		Source: sources[0],
		Model:  firstValue(r, "model", "model_name"),
	})
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	respondJSON(w, res)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.writeFormError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, errors.New("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	respondJSON(w, res)
}

// parseForm 同时支持 application/x-www-form-urlencoded 与 multipart/form-data
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

func firstValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.PostFormValue(name)); v != "" {
			return v
		}
	}
	return ""
}

// statusFor 将错误类别映射为HTTP状态码
func statusFor(err error) int {
	switch classify.KindOf(err) {
	case classify.KindInputMalformed:
		return http.StatusBadRequest
	case classify.KindSourceNotFound, classify.KindModelNotFound:
		return http.StatusNotFound
	case classify.KindTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	h.writeError(w, r, http.StatusBadRequest, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Stringer("kind", classify.KindOf(err)),
		zap.Error(err),
	}
	if start := GetStartTime(r.Context()); !start.IsZero() {
		fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request rejected", fields...)
	}
	respondStatus(w, status, errorBody{Detail: err.Error()})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
