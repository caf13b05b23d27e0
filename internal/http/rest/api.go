package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/jsvoboda/webshare_downloader/internal/logctx"
	"github.com/jsvoboda/webshare_downloader/internal/telemetry"
	"github.com/jsvoboda/webshare_downloader/internal/ws"
)

// Searcher is the slice of the Webshare client the API needs.
type Searcher interface {
	Login(ctx context.Context, username, password string) error
	LoggedIn() bool
	Username() string
	Search(ctx context.Context, query string) ([]ws.FileResult, error)
}

// DownloadManager starts and cancels background downloads.
type DownloadManager interface {
	Start(ctx context.Context, ident, fileName string) (download.Record, error)
	Cancel(ident string) error
}

// Credentials are the Webshare account credentials configured via environment.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Handler serves the search/download JSON API and the embedded web UI.
type Handler struct {
	client      Searcher
	manager     DownloadManager
	registry    *download.Registry
	downloadDir string
	creds       Credentials
	telemetry   *telemetry.Telemetry
	static      http.Handler

	mu           sync.RWMutex
	loginStatus  string
	loginMessage string
}

// NewHandler creates the API handler. static may be nil when no UI is served.
func NewHandler(
	client Searcher,
	manager DownloadManager,
	registry *download.Registry,
	downloadDir string,
	creds Credentials,
	t *telemetry.Telemetry,
	static http.Handler,
) *Handler {
	return &Handler{
		client:       client,
		manager:      manager,
		registry:     registry,
		downloadDir:  downloadDir,
		creds:        creds,
		telemetry:    t,
		static:       static,
		loginStatus:  "not_configured",
		loginMessage: "Webshare credentials not configured",
	}
}

// SetLoginState records the outcome of the startup auto-login for /api/status.
func (h *Handler) SetLoginState(status, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.loginStatus = status
	h.loginMessage = message
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/login", h.handleLogin)
	r.Get("/api/status", h.handleStatus)
	r.Post("/api/search", h.handleSearch)
	r.Post("/api/download", h.handleDownload)
	r.Get("/api/download/progress/{taskID}", h.handleProgress)
	r.Delete("/api/download/{taskID}", h.handleCancel)
	r.Get("/api/downloads", h.handleListDownloads)
	r.Get("/health", h.handleHealth)

	if h.static != nil {
		r.Handle("/", h.static)
		r.Handle("/static/*", h.static)
	}

	return r
}

type downloadPayload struct {
	ID             string `json:"id"`
	FileName       string `json:"fileName"`
	Status         string `json:"status"`
	Progress       *int   `json:"progress"`
	Message        string `json:"message"`
	Error          string `json:"error,omitempty"`
	TotalSize      *int64 `json:"totalSize,omitempty"`
	DownloadedSize int64  `json:"downloadedSize"`
}

func toPayload(rec download.Record) downloadPayload {
	p := downloadPayload{
		ID:             rec.ID,
		FileName:       rec.FileName,
		Status:         string(rec.Status),
		Progress:       rec.Progress,
		Message:        rec.Message,
		Error:          rec.Error,
		DownloadedSize: rec.BytesWritten,
	}

	if rec.BytesExpected >= 0 {
		size := rec.BytesExpected
		p.TotalSize = &size
	}

	return p
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if h.client.LoggedIn() {
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Already logged in"})

		return
	}

	if !h.creds.Configured() {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No credentials configured"})

		return
	}

	if err := h.client.Login(r.Context(), h.creds.Username, h.creds.Password); err != nil {
		logger.Error("login failed", "err", err)

		h.SetLoginState("error", download.UserMessage(err))

		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": download.UserMessage(err)})

		return
	}

	h.SetLoginState("success", "Successfully logged in as "+h.creds.Username)

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged in successfully"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	status, message := h.loginStatus, h.loginMessage
	h.mu.RUnlock()

	payload := map[string]any{
		"logged_in":              h.client.LoggedIn(),
		"credentials_configured": h.creds.Configured(),
		"login_status":           status,
		"login_message":          message,
	}

	if username := h.client.Username(); username != "" {
		payload["username"] = username
	}

	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req struct {
		Query string `json:"query"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Query parameter is required"})

		return
	}

	results, err := h.client.Search(r.Context(), req.Query)
	if err != nil {
		logger.Error("search failed", "query", req.Query, "err", err)

		if h.telemetry != nil {
			h.telemetry.RecordSearch("error")
		}

		respondJSON(w, statusFor(err), map[string]any{"success": false, "error": download.UserMessage(err)})

		return
	}

	if h.telemetry != nil {
		h.telemetry.RecordSearch("success")
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req struct {
		FileID   string `json:"fileId"`
		FileName string `json:"fileName"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "File ID is required"})

		return
	}

	rec, err := h.manager.Start(r.Context(), req.FileID, req.FileName)
	if err != nil {
		if errors.Is(err, download.ErrDuplicateTask) {
			respondJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"message":  "Download already in progress: " + rec.FileName,
				"taskId":   rec.ID,
				"status":   string(rec.Status),
				"progress": rec.Progress,
			})

			return
		}

		logger.Error("failed to start download", "file_id", req.FileID, "err", err)

		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": download.UserMessage(err)})

		return
	}

	logger.Info("download accepted", "download_id", rec.ID, "file_name", req.FileName)

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Download started: " + req.FileName,
		"taskId":  rec.ID,
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	rec, err := h.registry.Get(taskID)
	if err != nil {
		// Ambiguous by design: the task either never existed or was already
		// swept after finishing. Pollers fall back to /api/downloads.
		respondJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Download not found or completed"})

		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "download": toPayload(rec)})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if err := h.manager.Cancel(taskID); err != nil {
		respondJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Download not found or already finished"})

		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cancellation requested"})
}

type listedFile struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
	Modified      int64  `json:"modified"`
}

func (h *Handler) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	entries, err := os.ReadDir(h.downloadDir)
	if err != nil {
		if os.IsNotExist(err) {
			respondJSON(w, http.StatusOK, map[string]any{"success": true, "files": []listedFile{}})

			return
		}

		logger.Error("failed to list downloads", "dir", h.downloadDir, "err", err)

		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to list downloads"})

		return
	}

	files := make([]listedFile, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, listedFile{
			Name:          entry.Name(),
			Size:          info.Size(),
			SizeFormatted: humanize.Bytes(uint64(info.Size())),
			Modified:      info.ModTime().Unix(),
		})
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "files": files})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK", "service": "webshare-downloader"})
}

func statusFor(err error) int {
	var authErr *download.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized
	}

	var unavailErr *download.UnavailableError
	if errors.As(err, &unavailErr) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
