package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/export"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportPageSize  = 500
)

type importResult struct {
	Imported []string          `json:"imported"`
	Errors   []export.RowError `json:"errors"`
}

func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	filter := store.EquipmentFilter{
		Brand:  r.URL.Query().Get("brand"),
		Limit:  limit,
		Offset: offset,
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.EquipmentType = model.ParseEquipmentType(t)
	}

	records, err := s.store.ListEquipment(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.EquipmentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetEquipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateEquipment stores a manually entered record. Every populated
// field is marked as manual.
func (s *Server) handleCreateEquipment(w http.ResponseWriter, r *http.Request) {
	var rec model.EquipmentRecord
	if err := decodeBody(w, r, s.opts.Server.MaxUploadBytes, &rec); err != nil {
		badRequest(w, err.Error())
		return
	}
	rec.ID = ""
	rec.FieldMetadata = nil
	rec.CreatedAt, rec.UpdatedAt = time.Time{}, time.Time{}
	rec.MarkManual(rec.MissingProvenance()...)

	if err := s.store.CreateEquipment(r.Context(), &rec); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateEquipment replaces a record's fields. Changed fields become
// manual; provenance of untouched fields is kept.
func (s *Server) handleUpdateEquipment(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetEquipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var next model.EquipmentRecord
	if err := decodeBody(w, r, s.opts.Server.MaxUploadBytes, &next); err != nil {
		badRequest(w, err.Error())
		return
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = current.UpdatedAt
	next.FieldMetadata = make(map[string]model.FieldProvenance, len(current.FieldMetadata))
	for k, v := range current.FieldMetadata {
		next.FieldMetadata[k] = v
	}
	next.MarkManual(model.ChangedFields(current, &next)...)
	next.MarkManual(next.MissingProvenance()...)

	if err := s.store.UpdateEquipment(r.Context(), &next); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEquipment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportEquipment(w http.ResponseWriter, r *http.Request) {
	records, err := allEquipment(r.Context(), s.store)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteEquipmentXLSX(&buf, records); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, xlsxContentType, "equipment.xlsx", buf.Bytes())
}

func (s *Server) handleImportEquipment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.Server.MaxUploadBytes)
	f, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "a spreadsheet must be uploaded in the \"file\" field")
		return
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(w, "read upload: "+err.Error())
		return
	}
	records, rowErrs, err := export.ReadEquipmentXLSX(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	res := importResult{Imported: []string{}, Errors: rowErrs}
	if res.Errors == nil {
		res.Errors = []export.RowError{}
	}
	for i := range records {
		if err := s.store.CreateEquipment(r.Context(), &records[i]); err != nil {
			writeError(w, r, err)
			return
		}
		res.Imported = append(res.Imported, records[i].ID)
	}
	writeJSON(w, http.StatusOK, res)
}

// allEquipment pages through the whole inventory.
func allEquipment(ctx context.Context, st store.Store) ([]model.EquipmentRecord, error) {
	var out []model.EquipmentRecord
	for offset := 0; ; offset += exportPageSize {
		page, err := st.ListEquipment(ctx, store.EquipmentFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "api: list equipment")
		}
		out = append(out, page...)
		if len(page) < exportPageSize {
			return out, nil
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "invalid JSON body")
	}
	return nil
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
