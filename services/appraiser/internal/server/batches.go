package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"appraiserai/pkg/batch"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/export"
	"appraiserai/pkg/imaging"
	"appraiserai/pkg/prompt"
)

// batchItemView is the client representation of an item; image bytes are
// sent as a data URL only when requested.
type batchItemView struct {
	domain.BatchItem
	Image string `json:"image,omitempty"`
}

type batchView struct {
	ID        string          `json:"id"`
	Items     []batchItemView `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newBatchView(b domain.Batch, withImages bool) batchView {
	items := make([]batchItemView, len(b.Items))
	for i, item := range b.Items {
		items[i] = newBatchItemView(item, withImages)
	}
	return batchView{ID: b.ID, Items: items, CreatedAt: b.CreatedAt}
}

func newBatchItemView(item domain.BatchItem, withImage bool) batchItemView {
	view := batchItemView{BatchItem: item}
	if withImage && len(item.Optimized) > 0 {
		view.Image = imaging.DataURL(item.MIMEType, item.Optimized)
	}
	return view
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, user) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	var uploads []batch.Upload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			file, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid form data")
				return
			}
			data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
			file.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid form data")
				return
			}
			uploads = append(uploads, batch.Upload{Name: filepath.Base(header.Filename), Data: data})
		}
	}
	pc := prompt.ProductContext{
		Brand:    r.FormValue("brand"),
		Material: r.FormValue("material"),
		Period:   r.FormValue("period"),
		Notes:    r.FormValue("notes"),
	}
	started := time.Now()
	b, err := s.app.CreateBatch(r.Context(), user, uploads, pc)
	if err != nil {
		if errors.Is(err, context.Canceled) && b.ID != "" {
			// client went away; finished items are kept under b.ID
			return
		}
		writeAppError(w, r, err)
		return
	}
	logDuration(r, "batch request served", started, "batch_id", b.ID, "items", len(b.Items))
	writeJSON(w, http.StatusCreated, newBatchView(b, true))
}

// /batches/{id}, /batches/{id}/export.{csv,zip}, /batches/{id}/items/{itemId}[/regenerate]
func (s *Server) handleBatchByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/batches/")
	if len(parts) == 0 {
		notFound(w, "not found")
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		s.handleBatch(w, r, user, id)
	case len(parts) == 2 && (parts[1] == "export.csv" || parts[1] == "export.zip"):
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleBatchExport(w, r, user, id, strings.TrimPrefix(parts[1], "export."))
	case len(parts) == 3 && parts[1] == "items":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		s.handleBatchItemEdit(w, r, user, id, parts[2])
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "regenerate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleBatchItemRegenerate(w, r, user, id, parts[2])
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		b, err := s.app.GetBatch(r.Context(), user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBatchView(b, queryBool(r, "images")))
	case http.MethodDelete:
		if err := s.app.DeleteBatch(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBatchItemEdit(w http.ResponseWriter, r *http.Request, user domain.User, batchID, itemID string) {
	var edit batch.Edit
	if err := decodeJSON(r, &edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	item, err := s.app.UpdateBatchItem(r.Context(), user, batchID, itemID, edit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchItemView(item, false))
}

type regenerateRequest struct {
	Brand    string `json:"brand"`
	Material string `json:"material"`
	Period   string `json:"period"`
	Notes    string `json:"notes"`
}

func (s *Server) handleBatchItemRegenerate(w http.ResponseWriter, r *http.Request, user domain.User, batchID, itemID string) {
	if !s.allowRate(w, r, user) {
		return
	}
	var req regenerateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	item, err := s.app.RegenerateBatchItem(r.Context(), user, batchID, itemID, prompt.ProductContext{
		Brand:    req.Brand,
		Material: req.Material,
		Period:   req.Period,
		Notes:    req.Notes,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchItemView(item, false))
}

func (s *Server) handleBatchExport(w http.ResponseWriter, r *http.Request, user domain.User, id, format string) {
	opts := export.Options{
		Advanced:          queryBool(r, "advanced"),
		IncludeSKU:        queryBool(r, "sku"),
		IncludeCategories: queryBool(r, "categories"),
		IncludeTags:       queryBool(r, "tags"),
		Category:          strings.TrimSpace(r.URL.Query().Get("category")),
	}
	if format == "zip" {
		data, err := s.app.ExportBatchZip(r.Context(), user, id, opts)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeAttachment(w, "application/zip", export.ZipFilename, data)
		return
	}
	data, err := s.app.ExportBatchCSV(r.Context(), user, id, opts)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", export.CSVFilename, data)
}
