package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dietflow/importer/internal/parser"
	"github.com/dietflow/importer/internal/session"
)

// NewHTTPHandler exposes the pipeline over HTTP. Authentication and blob
// storage of the original upload are the host application's concern.
func NewHTTPHandler(service *Service) http.Handler {
	mux := http.NewServeMux()
	handler := &httpHandler{service: service}

	mux.HandleFunc("POST /import", handler.upload)
	mux.HandleFunc("GET /import/{id}", handler.status)
	mux.HandleFunc("POST /import/{id}/commit", handler.commit)
	mux.HandleFunc("POST /import/{id}/discard", handler.discard)

	return mux
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid form data: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file required: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read file: %w", err))
		return
	}

	req := UploadRequest{
		FileName:       header.Filename,
		ForceModelType: strings.TrimSpace(r.FormValue("forceModelType")),
		Data:           bytes.NewReader(data),
	}

	result, err := h.service.Upload(r.Context(), req)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *httpHandler) status(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *httpHandler) commit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *httpHandler) discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Discard(r.PathValue("id")); err != nil {
		writeError(w, sessionStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"discarded": true})
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, parser.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrStoreFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func sessionStatus(err error) int {
	var terminal *session.TerminalError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrExpired):
		return http.StatusGone
	case errors.As(err, &terminal), errors.Is(err, session.ErrCommitInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrNothingToCommit), errors.Is(err, session.ErrNotValidated):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
