package store

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

func TestCheckReportUpdate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tests := []struct {
		name    string
		current model.ReportStatus
		next    model.InspectionReport
		wantErr bool
	}{
		{"same status", model.ReportStatusDraft, model.InspectionReport{Status: model.ReportStatusDraft}, false},
		{"draft to processing", model.ReportStatusDraft, model.InspectionReport{Status: model.ReportStatusProcessing}, false},
		{"processing to completed", model.ReportStatusProcessing, model.InspectionReport{Status: model.ReportStatusCompleted, CompletedAt: &now}, false},
		{"processing to error", model.ReportStatusProcessing, model.InspectionReport{Status: model.ReportStatusError, Error: "boom"}, false},
		{"draft to completed", model.ReportStatusDraft, model.InspectionReport{Status: model.ReportStatusCompleted, CompletedAt: &now}, true},
		{"completed back to draft", model.ReportStatusCompleted, model.InspectionReport{Status: model.ReportStatusDraft}, true},
		{"completed without timestamp", model.ReportStatusProcessing, model.InspectionReport{Status: model.ReportStatusCompleted}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := tt.next
			err := checkReportUpdate(tt.current, &next)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodeEquipment_IndexedColumns(t *testing.T) {
	t.Parallel()

	brand := "  Goodman "
	kind := "Heat Pump"
	cols, err := encodeEquipment(&model.EquipmentRecord{Brand: &brand, EquipmentType: &kind})
	require.NoError(t, err)
	require.NotNil(t, cols.brand)
	assert.Equal(t, "goodman", *cols.brand)
	assert.Equal(t, "heat_pump", cols.equipmentType)

	cols, err = encodeEquipment(&model.EquipmentRecord{})
	require.NoError(t, err)
	assert.Nil(t, cols.brand)
	assert.Equal(t, "other", cols.equipmentType)
}

func TestPrepareNewReport_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := &model.InspectionReport{}
	require.NoError(t, prepareNewReport(r, now))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, model.ReportStatusDraft, r.Status)
}

func TestAttachImages(t *testing.T) {
	t.Parallel()

	r := &model.InspectionReport{}
	attachImages(r, []model.Image{
		{ID: "a", Kind: model.ImageKindEquipment, Size: 3},
		{ID: "b", Kind: model.ImageKindLabel, Size: 4},
		{ID: "c", Kind: model.ImageKindEquipment, Size: 5},
	})
	require.Len(t, r.LabelImages, 1)
	require.Len(t, r.EquipmentImages, 2)
	assert.Equal(t, "c", r.EquipmentImages[1].ID)
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(eris.Wrap(ErrNotFound, "sqlite: report r1")))
	assert.False(t, IsNotFound(eris.New("sqlite: begin tx")))
	assert.False(t, IsNotFound(nil))
}
