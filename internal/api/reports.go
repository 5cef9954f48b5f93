package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/export"
	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

type createReportRequest struct {
	EquipmentID string `json:"equipmentId"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	filter := store.ReportFilter{
		EquipmentID: q.Get("equipmentId"),
		Status:      model.ReportStatus(q.Get("status")),
		Limit:       limit,
		Offset:      offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(w, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}

	reports, err := s.store.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.InspectionReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, s.opts.Server.MaxUploadBytes, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if req.EquipmentID != "" {
		if _, err := s.store.GetEquipment(r.Context(), req.EquipmentID); err != nil {
			if store.IsNotFound(err) {
				badRequest(w, "unknown equipment "+strconv.Quote(req.EquipmentID))
				return
			}
			writeError(w, r, err)
			return
		}
	}

	report := &model.InspectionReport{EquipmentID: req.EquipmentID}
	if err := s.store.CreateReport(r.Context(), report); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteReport(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadImages attaches photos of one kind to a draft report.
func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	kind := model.ImageKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		badRequest(w, `kind must be "label" or "equipment"`)
		return
	}
	report, err := s.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Status != model.ReportStatusDraft {
		writeError(w, r, eris.Wrapf(model.ErrInvalidTransition, "report is %s; images can only be added to a draft", report.Status))
		return
	}

	images, err := s.readImages(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, img := range images {
		stored := &model.Image{
			ReportID:    report.ID,
			Kind:        kind,
			ContentType: img.MediaType,
			Data:        img.Data,
		}
		if err := s.store.SaveImage(r.Context(), stored); err != nil {
			writeError(w, r, err)
			return
		}
	}

	report, err = s.store.GetReport(r.Context(), report.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleProcessReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.scanner.ProcessReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErrorReport(w, r, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, equipment, err := s.loadReportForExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteReportXLSX(&buf, report, equipment); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, xlsxContentType, "report-"+report.ID+".xlsx", buf.Bytes())
}

func (s *Server) handleExportReportMarkdown(w http.ResponseWriter, r *http.Request) {
	report, equipment, err := s.loadReportForExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteReportMarkdown(&buf, report, equipment); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "text/markdown; charset=utf-8", "report-"+report.ID+".md", buf.Bytes())
}

// loadReportForExport fetches a report and its linked equipment, which may
// have been deleted since.
func (s *Server) loadReportForExport(ctx context.Context, id string) (*model.InspectionReport, *model.EquipmentRecord, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if report.EquipmentID == "" {
		return report, nil, nil
	}
	equipment, err := s.store.GetEquipment(ctx, report.EquipmentID)
	if store.IsNotFound(err) {
		return report, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return report, equipment, nil
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.store.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}
