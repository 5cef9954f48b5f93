package api

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/normalize"
	"github.com/xMathyu/hvac-scanner/internal/resilience"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
	"github.com/xMathyu/hvac-scanner/internal/store"
	"github.com/xMathyu/hvac-scanner/pkg/anthropic"
	"github.com/xMathyu/hvac-scanner/pkg/anthropic/mocks"
)

func createReport(t *testing.T, base string, body any) model.InspectionReport {
	t.Helper()
	resp := doJSON(t, http.MethodPost, base+"/api/reports", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[model.InspectionReport](t, resp)
}

const carrierLabelJSON = `{"extractedText":"CARRIER 24ACC636A003","structuredData":{"brand":"Carrier","model":"24ACC636A003","equipmentType":"air_conditioner"},"confidence":0.9}`

func TestReportLifecycle(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: carrierLabelJSON}},
		StopReason: "end_turn",
	}, nil).Once()

	ts, st := newTestServerWith(t, func(st store.Store) Scanner {
		return scanner.New(client, st, scanner.Config{
			Model:               "claude-sonnet-4-5-20250929",
			MaxTokens:           1024,
			ConfidenceThreshold: 0.7,
			MaxImageBytes:       1 << 20,
			MaxImages:           3,
			Retry:               resilience.RetryPolicy{MaxAttempts: 1},
		}, nil)
	})

	report := createReport(t, ts.URL, nil)
	assert.Equal(t, model.ReportStatusDraft, report.Status)

	resp := postMultipart(t, ts.URL+"/api/reports/"+report.ID+"/images?kind=label",
		part{"image", "plate.png", pngBytes("plate")})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	withImages := decode[model.InspectionReport](t, resp)
	require.Len(t, withImages.LabelImages, 1)
	assert.Empty(t, withImages.EquipmentImages)

	resp = doJSON(t, http.MethodGet, ts.URL+withImages.LabelImages[0].URL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes("plate"), data)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/reports/"+report.ID+"/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[model.InspectionReport](t, resp)
	assert.Equal(t, model.ReportStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.LabelScan)
	require.NotEmpty(t, done.EquipmentID)

	eq, err := st.GetEquipment(context.Background(), done.EquipmentID)
	require.NoError(t, err)
	assert.Equal(t, "Carrier", *eq.Brand)

	resp = postMultipart(t, ts.URL+"/api/reports/"+report.ID+"/images?kind=equipment",
		part{"image", "unit.png", pngBytes("unit")})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports?status=completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.InspectionReport](t, resp), 1)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/reports/"+report.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessReport_ParseFailureReturnsReport(t *testing.T) {
	t.Parallel()

	failed := &model.InspectionReport{ID: "r-1", Status: model.ReportStatusError, Error: "retake"}
	sc := &fakeScanner{process: func(context.Context, string) (*model.InspectionReport, error) {
		return failed, eris.Wrap(&normalize.ParseError{Excerpt: "nope", Err: eris.New("no object")}, "scanner: label_scan")
	}}
	ts, _ := newTestServer(t, sc)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/r-1/process", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, parseFailureMessage, body.Error)
	require.NotNil(t, body.Report)
	assert.Equal(t, model.ReportStatusError, body.Report.Status)
}

func TestProcessReport_NotFound(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{process: func(context.Context, string) (*model.InspectionReport, error) {
		return nil, eris.Wrap(store.ErrNotFound, "scanner: load report")
	}}
	ts, _ := newTestServer(t, sc)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/missing/process", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateReport_UnknownEquipment(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports", map[string]string{"equipmentId": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadImages_Validation(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	report := createReport(t, ts.URL, nil)

	resp := postMultipart(t, ts.URL+"/api/reports/"+report.ID+"/images?kind=selfie",
		part{"image", "a.png", pngBytes("x")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postMultipart(t, ts.URL+"/api/reports/missing/images?kind=label",
		part{"image", "a.png", pngBytes("x")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListReports_UnknownStatus(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/reports?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportExports(t *testing.T) {
	t.Parallel()

	ts, st := newTestServer(t, &fakeScanner{})
	ctx := context.Background()

	eq := &model.EquipmentRecord{Brand: strPtr("Rheem"), Model: strPtr("RA1436")}
	require.NoError(t, st.CreateEquipment(ctx, eq))
	report := createReport(t, ts.URL, map[string]string{"equipmentId": eq.ID})
	assert.Equal(t, eq.ID, report.EquipmentID)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID+"/export.md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	md, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(md), "Rheem")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report-"+report.ID+".xlsx")

	require.NoError(t, st.DeleteEquipment(ctx, eq.ID))
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID+"/export.md", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
