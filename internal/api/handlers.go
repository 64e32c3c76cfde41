package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/remote"
)

// DefaultMaxUploadBytes caps a single uploaded object.
const DefaultMaxUploadBytes int64 = 50 << 20

// Handler serves table and object requests against a Backend.
type Handler struct {
	backend   Backend
	maxUpload int64
}

func NewHandler(backend Backend, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{backend: backend, maxUpload: maxUpload}
}

// HandleSelect handles GET /rest/v1/{table}.
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	q := r.URL.Query()

	if sel := q.Get("select"); sel != "" && sel != "*" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "only select=* is supported")
		return
	}
	order, err := remote.ParseOrder(q.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	rows, err := h.backend.Select(r.Context(), table, order)
	if err != nil {
		h.internalError(w, "select", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleInsert handles POST /rest/v1/{table}. The body is one row object or
// an array holding one.
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	row, err := decodeRow(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	stored, err := h.backend.Insert(r.Context(), table, row)
	if err != nil {
		h.internalError(w, "insert", err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, []remote.Row{stored})
}

// HandleUpdate handles PATCH /rest/v1/{table}?id=eq.{id}. A filter matching
// nothing yields an empty array, not an error.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	id, ok := strings.CutPrefix(r.URL.Query().Get("id"), "eq.")
	if !ok || id == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "an id=eq.{id} filter is required")
		return
	}

	patch, err := decodeRow(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	updated, err := h.backend.Update(r.Context(), table, id, patch)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			writeJSON(w, http.StatusOK, []remote.Row{})
			return
		}
		h.internalError(w, "update", err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, []remote.Row{updated})
}

// HandleUploadObject handles POST /storage/v1/object/{bucket}/{path}.
// Existing objects are only replaced when x-upsert is true.
func (h *Handler) HandleUploadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objectPath := wildcardPath(r)
	if objectPath == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "object path is required")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("object exceeds %d bytes", h.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "InvalidRequest", "reading body failed")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "object body is empty")
		return
	}

	if r.Header.Get("x-upsert") != "true" {
		if _, _, readErr := h.backend.ReadBlob(r.Context(), bucket, objectPath); readErr == nil {
			writeError(w, http.StatusConflict, "Duplicate", "the resource already exists")
			return
		}
	}

	if _, err := h.backend.UploadBlob(r.Context(), bucket, objectPath, data, r.Header.Get("Content-Type")); err != nil {
		h.internalError(w, "upload", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"Key": bucket + "/" + objectPath})
}

// HandleReadObject handles GET /storage/v1/object/public/{bucket}/{path}.
func (h *Handler) HandleReadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objectPath := wildcardPath(r)

	data, contentType, err := h.backend.ReadBlob(r.Context(), bucket, objectPath)
	if err != nil {
		if errors.Is(err, remote.ErrBlobNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Object not found")
			return
		}
		h.internalError(w, "read object", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	debuglog.WithFields(map[string]any{"op": op}).Errorf("backend error: %v", err)
	writeError(w, http.StatusInternalServerError, "InternalServerError", op+" failed")
}

func decodeRow(body io.Reader) (remote.Row, error) {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	if raw[0] == '[' {
		var rows []remote.Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		if len(rows) != 1 {
			return nil, fmt.Errorf("expected exactly one row, got %d", len(rows))
		}
		return rows[0], nil
	}

	var row remote.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("body must be a JSON object")
	}
	return row, nil
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}

func wildcardPath(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return strings.Trim(p, "/")
}
