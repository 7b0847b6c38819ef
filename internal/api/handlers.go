package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/basel-ax/vybex/internal/config"
	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/service"
	"github.com/go-chi/chi/v5"
)

var errInvalidRequest = errors.New("invalid request")

// Handler serves the try-on and wardrobe endpoints
type Handler struct {
	tryOn    *service.TryOnService
	wardrobe *service.WardrobeService
	storage  config.StorageConfig
	logger   *slog.Logger
}

// NewHandler creates a handler. wardrobe may be nil when no database is configured.
func NewHandler(tryOn *service.TryOnService, wardrobe *service.WardrobeService, storage config.StorageConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tryOn:    tryOn,
		wardrobe: wardrobe,
		storage:  storage,
		logger:   logger,
	}
}

// GenerateRequest is the body of POST /api/try-on/generate
type GenerateRequest struct {
	SourceImagePath    string  `json:"sourceImagePath"`
	ReferenceImagePath string  `json:"referenceImagePath"`
	Category           string  `json:"category"`
	Steps              int     `json:"steps"`
	Guidance           float64 `json:"guidance"`
	Seed               *int    `json:"seed"`
	Model              string  `json:"model"`
}

func (g GenerateRequest) options() domain.TryOnOptions {
	return domain.TryOnOptions{
		Category:      g.Category,
		Steps:         g.Steps,
		GuidanceScale: g.Guidance,
		Seed:          g.Seed,
		Model:         g.Model,
	}
}

// WardrobeTryOnRequest is the body of POST /api/wardrobe/{itemId}/try-on
type WardrobeTryOnRequest struct {
	SelfieImagePath string `json:"selfieImagePath"`
}

type imageResponse struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size"`
}

type generateResponse struct {
	Success     bool            `json:"success"`
	Provider    string          `json:"provider"`
	TaskID      string          `json:"taskId,omitempty"`
	Images      []imageResponse `json:"images"`
	TotalImages int             `json:"totalImages"`
	Message     string          `json:"message"`
}

type statusResponse struct {
	Success bool              `json:"success"`
	TaskID  string            `json:"taskId"`
	Status  domain.TaskStatus `json:"status"`
	Images  []string          `json:"images"`
}

type wardrobeTryOnResponse struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Item       *domain.WardrobeItem `json:"item"`
	TryOnImage imageResponse        `json:"tryOnImage"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Health reports liveness and the active provider
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": h.tryOn.ProviderName(),
	})
}

// Generate runs a try-on for two images already inside the upload directory
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed JSON body", errInvalidRequest))
		return
	}
	if req.SourceImagePath == "" || req.ReferenceImagePath == "" {
		h.fail(w, r, fmt.Errorf("%w: sourceImagePath and referenceImagePath are required", errInvalidRequest))
		return
	}

	source, err := service.ResolveUploadPath(h.storage.UploadDir, req.SourceImagePath)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reference, err := service.ResolveUploadPath(h.storage.UploadDir, req.ReferenceImagePath)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.tryOn.GenerateFromPaths(r.Context(), source, reference, h.storage.TryOnDir, req.options())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.generateResponse(result))
}

// UploadAndGenerate runs a try-on for two images sent as multipart form files
func (h *Handler) UploadAndGenerate(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.fail(w, r, err)
		return
	}

	source, err := h.readUpload(r, "source", "sourceImage", "modelImage")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reference, err := h.readUpload(r, "reference", "referenceImage", "clothImage")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	opts := GenerateRequest{
		Category: r.FormValue("category"),
		Steps:    formInt(r, "steps"),
		Guidance: formFloat(r, "guidance"),
		Seed:     formOptionalInt(r, "seed"),
		Model:    r.FormValue("model"),
	}.options()

	result, err := h.tryOn.GenerateFromUploads(r.Context(), source, reference, h.storage.TryOnDir, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.generateResponse(result))
}

// Status blocks until the remote task is terminal and reports its outcome
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	report, err := h.tryOn.CheckStatus(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Success: true,
		TaskID:  report.TaskID,
		Status:  report.Status,
		Images:  report.ImageURLs,
	})
}

// ListWardrobe returns a user's wardrobe items
func (h *Handler) ListWardrobe(w http.ResponseWriter, r *http.Request) {
	items, err := h.wardrobe.Items(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   items,
		"count":   len(items),
	})
}

// GetWardrobeItem returns one wardrobe item
func (h *Handler) GetWardrobeItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.wardrobe.Item(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"item":    item,
	})
}

// WardrobeTryOn renders a wardrobe item onto a selfie already inside the upload directory
func (h *Handler) WardrobeTryOn(w http.ResponseWriter, r *http.Request) {
	var req WardrobeTryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SelfieImagePath == "" {
		h.fail(w, r, fmt.Errorf("%w: selfieImagePath is required", errInvalidRequest))
		return
	}

	selfie, err := service.ResolveUploadPath(h.storage.UploadDir, req.SelfieImagePath)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	item, result, err := h.wardrobe.GenerateTryOn(r.Context(), chi.URLParam(r, "itemId"), selfie)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wardrobeTryOnResponse{
		Success:    true,
		Message:    "Try-on generated successfully",
		Item:       item,
		TryOnImage: h.imageResponse(result.Images[0]),
	})
}

// WardrobeTryOnUpload renders a wardrobe item onto an uploaded selfie
func (h *Handler) WardrobeTryOnUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.fail(w, r, err)
		return
	}

	selfie, err := h.readUpload(r, "selfie", "selfie")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	item, result, err := h.wardrobe.GenerateTryOnFromUpload(r.Context(), chi.URLParam(r, "itemId"), selfie)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wardrobeTryOnResponse{
		Success:    true,
		Message:    "Try-on generated successfully",
		Item:       item,
		TryOnImage: h.imageResponse(result.Images[0]),
	})
}

func (h *Handler) generateResponse(result *domain.TryOnResult) generateResponse {
	images := make([]imageResponse, 0, len(result.Images))
	for _, img := range result.Images {
		images = append(images, h.imageResponse(img))
	}
	return generateResponse{
		Success:     true,
		Provider:    result.Provider,
		TaskID:      result.TaskID,
		Images:      images,
		TotalImages: result.Count,
		Message:     fmt.Sprintf("Generated %d try-on image(s)", result.Count),
	}
}

func (h *Handler) imageResponse(img domain.ResultImage) imageResponse {
	public, err := service.PublicUploadURL(h.storage.UploadDir, img.LocalPath)
	if err != nil {
		public = img.LocalPath
	}
	return imageResponse{
		Filename: img.Filename,
		Path:     public,
		URL:      img.SourceURL,
		Size:     img.ByteSize,
	}
}

// parseMultipart bounds the body to two images plus form overhead
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.storage.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(h.storage.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", errInvalidRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

// readUpload reads the first present form file among fields
func (h *Handler) readUpload(r *http.Request, role string, fields ...string) (domain.UploadedImage, error) {
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return domain.UploadedImage{}, fmt.Errorf("%w: %s: %v", errInvalidRequest, field, err)
		}
		defer file.Close()

		if header.Size > h.storage.MaxUploadSize {
			return domain.UploadedImage{}, fmt.Errorf("%w: %s exceeds %d bytes", errInvalidRequest, field, h.storage.MaxUploadSize)
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
		if !slices.Contains(h.storage.AllowedFormats, ext) {
			return domain.UploadedImage{}, fmt.Errorf("%w: %s has unsupported format %q, allowed: %s",
				errInvalidRequest, field, ext, strings.Join(h.storage.AllowedFormats, ", "))
		}

		data, err := io.ReadAll(io.LimitReader(file, h.storage.MaxUploadSize+1))
		if err != nil {
			return domain.UploadedImage{}, fmt.Errorf("failed to read %s: %w", field, err)
		}
		if int64(len(data)) > h.storage.MaxUploadSize {
			return domain.UploadedImage{}, fmt.Errorf("%w: %s exceeds %d bytes", errInvalidRequest, field, h.storage.MaxUploadSize)
		}

		return domain.UploadedImage{Role: role, Filename: header.Filename, Data: data}, nil
	}

	return domain.UploadedImage{}, fmt.Errorf("%w: missing %s image (field %s)", errInvalidRequest, role, strings.Join(fields, " or "))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest), errors.Is(err, domain.ErrInputNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPollTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrStatusUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSubmission),
		errors.Is(err, domain.ErrRemoteTaskFailed),
		errors.Is(err, domain.ErrMalformedResponse),
		errors.Is(err, domain.ErrDownload),
		errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.FormValue(key))
	return n
}

// formOptionalInt returns nil when key is absent or not a number
func formOptionalInt(r *http.Request, key string) *int {
	n, err := strconv.Atoi(r.FormValue(key))
	if err != nil {
		return nil
	}
	return &n
}

func formFloat(r *http.Request, key string) float64 {
	f, _ := strconv.ParseFloat(r.FormValue(key), 64)
	return f
}
