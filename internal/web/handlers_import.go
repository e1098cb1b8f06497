package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

// multipartOverhead allows for boundaries and part headers on top of the file.
const multipartOverhead = 64 << 10

// handleImport applies an uploaded export to the registry.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	mode := reconcile.Mode(r.URL.Query().Get("mode"))
	result, err := s.service.ImportFile(ctx, name, data, mode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleImportPreview reports what an import would change without applying it.
func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	mode := reconcile.Mode(r.URL.Query().Get("mode"))
	preview, err := s.service.Preview(r.Context(), name, data, mode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleRecentImports lists the import journal, newest first.
func (s *Server) handleRecentImports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultJournalSize)
	writeJSON(w, http.StatusOK, s.service.RecentImports(limit))
}

// readUpload reads the multipart "file" field, bounded by the configured
// maximum export size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, core.ErrFileTooLarge
		}
		return "", nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, core.ErrNoFile
		}
		return "", nil, fmt.Errorf("read multipart file: %w", err)
	}
	defer file.Close()

	if header.Size > maxSize {
		return "", nil, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, header.Size)
	}

	data, err := importer.ReadLimited(file, maxSize)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}
