package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urukhq/whisperd/internal/core/job"
)

// maxUploadBytes はアップロード受付の上限サイズ
const maxUploadBytes = 512 << 20

// JobService は受付・取り消し・一覧のユースケースです。
type JobService interface {
	Submit(ctx context.Context, audioURL string, metadata map[string]any, userInfo json.RawMessage) (*job.Receipt, error)
	UploadAndSubmit(ctx context.Context, data []byte, filename string, userInfo json.RawMessage) (*job.UploadReceipt, error)
	Cancel(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]*job.Job, error)
}

// StatusResolver は単一ジョブのステータス解決です。
type StatusResolver interface {
	Resolve(ctx context.Context, jobID string) (*job.Resolution, error)
}

// Handler は HTTP エンドポイントの実装です。
type Handler struct {
	jobs     JobService
	resolver StatusResolver
	logger   *slog.Logger
}

// NewHandler は新しい Handler を作成します。
func NewHandler(jobs JobService, resolver StatusResolver, logger *slog.Logger) *Handler {
	return &Handler{jobs: jobs, resolver: resolver, logger: logger}
}

// submitRequest はジョブ受付のリクエストボディです。
type submitRequest struct {
	AudioURL string         `json:"audio_url"`
	Metadata map[string]any `json:"metadata"`
}

// CreateTranscription はジョブを受け付けます。
func (h *Handler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.jobs.Submit(r.Context(), req.AudioURL, req.Metadata, userFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// GetTranscription は単一ジョブの現在ステータスを返します。
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	res, err := h.resolver.Resolve(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTranscriptions は全ジョブを新しい順に返します。
func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// CancelTranscription はジョブの取り消しを要求し、取り消し後の解決済み
// ステータスを返します。取り消しは冪等で、既に終端のジョブに対しても
// 200 を返します。
func (h *Handler) CancelTranscription(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadFile はファイルを受け取り、Blob ストレージ経由でジョブを受け付けます。
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	receipt, err := h.jobs.UploadAndSubmit(r.Context(), data, header.Filename, userFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Healthz は依存先に触れない軽量のヘルスチェックです。
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root はサービスの案内だけを返します。
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "whisperd",
		"message": "asynchronous audio transcription service",
	})
}

// writeServiceError はユースケース層のエラーを HTTP ステータスへ写像します。
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrInvalidAudioURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, job.ErrStorageNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "file upload storage is not configured")
	case errors.Is(err, job.ErrUpload):
		h.logger.Error("blob upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
