package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// maxUploadSize caps the multipart body; larger documents are rejected by the service anyway
const maxUploadSize = 32 << 20

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes {"error": message}
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP status codes. Internal details are
// logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoTextExtracted):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Error handling request", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleUpload stores an uploaded PDF
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeJSONError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	file, err := s.service.Upload(header.Filename, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":        file.ID,
		"file_name": file.FileName,
	})
}

// handleValidate re-validates a stored file
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	file, err := s.service.Validate(r.PathValue("file_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid":       file.IsValid,
		"invalid_reason": file.InvalidReason,
	})
}

// processRequest is the optional body of a process call
type processRequest struct {
	IsPremiumUser bool `json:"is_premium_user"`
}

// handleProcess runs the extraction pipeline for a stored file
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	receipt, err := s.service.Process(r.Context(), r.PathValue("file_id"), req.IsPremiumUser)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleListReceipts returns a page of active receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeJSONError(w, "page must be an integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeJSONError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}

	result, err := s.service.ListReceipts(page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// handleExport returns active receipts as an XLSX workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.ExportReceipts(&buf); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}

// handleGetReceipt returns a single active receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("receipt_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}
