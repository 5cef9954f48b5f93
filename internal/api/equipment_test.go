package api

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

func TestEquipmentCRUD(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	base := ts.URL + "/api/equipment"

	resp := doJSON(t, http.MethodPost, base, map[string]any{
		"id":       "client-chosen",
		"brand":    "Lennox",
		"model":    "XC21",
		"location": "Basement",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.EquipmentRecord](t, resp)
	assert.NotEqual(t, "client-chosen", created.ID)
	assert.Equal(t, model.SourceManual, created.FieldMetadata[model.FieldBrand].Source)
	assert.Equal(t, model.SourceManual, created.FieldMetadata[model.FieldModel].Source)
	assert.False(t, created.CreatedAt.IsZero())

	resp = doJSON(t, http.MethodGet, base+"/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.EquipmentRecord](t, resp)
	assert.Equal(t, "Lennox", *got.Brand)
	assert.Equal(t, "Basement", got.Location)

	resp = doJSON(t, http.MethodGet, base+"?brand=lennox", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.EquipmentRecord](t, resp), 1)

	resp = doJSON(t, http.MethodDelete, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateEquipment_KeepsScannedProvenance(t *testing.T) {
	t.Parallel()

	ts, st := newTestServer(t, &fakeScanner{})
	ctx := context.Background()

	scanned := &model.EquipmentRecord{
		Brand: strPtr("Carrier"),
		Model: strPtr("24ACC636"),
		FieldMetadata: map[string]model.FieldProvenance{
			model.FieldBrand: model.ScannedProvenance(0.95),
			model.FieldModel: model.ScannedProvenance(0.6),
		},
	}
	require.NoError(t, st.CreateEquipment(ctx, scanned))

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/equipment/"+scanned.ID, map[string]any{
		"brand":        "Carrier",
		"model":        "24ACC636A003",
		"serialNumber": "1234E56789",
		"createdAt":    "2001-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.EquipmentRecord](t, resp)

	assert.Equal(t, model.SourceScanned, updated.FieldMetadata[model.FieldBrand].Source)
	assert.Equal(t, model.SourceManual, updated.FieldMetadata[model.FieldModel].Source)
	assert.Equal(t, model.SourceManual, updated.FieldMetadata[model.FieldSerialNumber].Source)
	assert.NotEqual(t, 2001, updated.CreatedAt.Year(), "createdAt is not client-writable")
	assert.False(t, updated.UpdatedAt.Before(scanned.UpdatedAt))

	stored, err := st.GetEquipment(ctx, scanned.ID)
	require.NoError(t, err)
	assert.Equal(t, "24ACC636A003", *stored.Model)
}

func TestUpdateEquipment_NotFound(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp := doJSON(t, http.MethodPut, ts.URL+"/api/equipment/missing", map[string]any{"brand": "Trane"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateEquipment_BadJSON(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp, err := http.Post(ts.URL+"/api/equipment", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEquipment_BadLimit(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/equipment?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEquipmentExportImport(t *testing.T) {
	t.Parallel()

	ts, st := newTestServer(t, &fakeScanner{})
	ctx := context.Background()
	btu := 36000
	require.NoError(t, st.CreateEquipment(ctx, &model.EquipmentRecord{Brand: strPtr("Goodman"), BTU: &btu}))

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/equipment/export.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "equipment.xlsx")

	var workbook bytes.Buffer
	_, err := workbook.ReadFrom(resp.Body)
	require.NoError(t, err)

	resp = postMultipart(t, ts.URL+"/api/equipment/import", part{"file", "equipment.xlsx", workbook.Bytes()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[importResult](t, resp)
	require.Len(t, res.Imported, 1)
	assert.Empty(t, res.Errors)

	imported, err := st.GetEquipment(ctx, res.Imported[0])
	require.NoError(t, err)
	assert.Equal(t, "Goodman", *imported.Brand)
	require.NotNil(t, imported.BTU)
	assert.Equal(t, 36000, *imported.BTU)
	assert.Equal(t, model.SourceManual, imported.FieldMetadata[model.FieldBTU].Source)
}

func TestImportEquipment_RequiresFile(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, &fakeScanner{})
	resp := postMultipart(t, ts.URL+"/api/equipment/import", part{"other", "x.xlsx", []byte("x")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

