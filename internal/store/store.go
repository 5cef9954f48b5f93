package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// EquipmentFilter specifies criteria for listing equipment.
type EquipmentFilter struct {
	Brand         string              `json:"brand,omitempty"` // case-insensitive exact match
	EquipmentType model.EquipmentType `json:"equipmentType,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	Offset        int                 `json:"offset,omitempty"`
}

// ReportFilter specifies criteria for listing inspection reports.
type ReportFilter struct {
	EquipmentID  string             `json:"equipmentId,omitempty"`
	Status       model.ReportStatus `json:"status,omitempty"`
	CreatedAfter time.Time          `json:"createdAfter,omitempty"`
	Limit        int                `json:"limit,omitempty"`
	Offset       int                `json:"offset,omitempty"`
}

// Store persists equipment records, inspection reports, and their images.
type Store interface {
	// Equipment
	CreateEquipment(ctx context.Context, rec *model.EquipmentRecord) error
	GetEquipment(ctx context.Context, id string) (*model.EquipmentRecord, error)
	UpdateEquipment(ctx context.Context, rec *model.EquipmentRecord) error
	DeleteEquipment(ctx context.Context, id string) error
	ListEquipment(ctx context.Context, filter EquipmentFilter) ([]model.EquipmentRecord, error)

	// Reports
	CreateReport(ctx context.Context, r *model.InspectionReport) error
	GetReport(ctx context.Context, id string) (*model.InspectionReport, error)
	UpdateReport(ctx context.Context, r *model.InspectionReport) error
	DeleteReport(ctx context.Context, id string) error
	ListReports(ctx context.Context, filter ReportFilter) ([]model.InspectionReport, error)

	// Images
	SaveImage(ctx context.Context, img *model.Image) error
	GetImage(ctx context.Context, id string) (*model.Image, error)
	ListImages(ctx context.Context, reportID string, kind model.ImageKind) ([]model.Image, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// prepareNewEquipment assigns the id and timestamps of a record about to
// be inserted.
func prepareNewEquipment(rec *model.EquipmentRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.Touch(now)
}

// equipmentColumns are the indexed columns derived from a record; the full
// record is kept in the data column.
type equipmentColumns struct {
	brand         *string
	equipmentType string
	data          []byte
}

func encodeEquipment(rec *model.EquipmentRecord) (equipmentColumns, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return equipmentColumns{}, eris.Wrap(err, "store: marshal equipment")
	}
	cols := equipmentColumns{equipmentType: string(rec.Category()), data: data}
	if rec.Brand != nil {
		b := strings.ToLower(strings.TrimSpace(*rec.Brand))
		cols.brand = &b
	}
	return cols, nil
}

func decodeEquipment(data []byte, createdAt, updatedAt time.Time) (*model.EquipmentRecord, error) {
	var rec model.EquipmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal equipment")
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}

// prepareNewReport assigns the id and creation time of a new report and
// defaults its status to draft.
func prepareNewReport(r *model.InspectionReport, now time.Time) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Status == "" {
		r.Status = model.ReportStatusDraft
	}
	return eris.Wrap(r.Validate(), "store: invalid report")
}

// checkReportUpdate validates moving a stored report from current to the
// state carried by next.
func checkReportUpdate(current model.ReportStatus, next *model.InspectionReport) error {
	if err := next.Validate(); err != nil {
		return eris.Wrap(err, "store: invalid report")
	}
	if current != next.Status && !current.CanTransition(next.Status) {
		return eris.Wrapf(model.ErrInvalidTransition, "store: report %s %s -> %s", next.ID, current, next.Status)
	}
	return nil
}

// reportColumns holds the JSON-encoded outcome columns of a report.
type reportColumns struct {
	labelScan []byte
	analysis  []byte
}

func encodeReport(r *model.InspectionReport) (reportColumns, error) {
	var cols reportColumns
	var err error
	if r.LabelScan != nil {
		if cols.labelScan, err = json.Marshal(r.LabelScan); err != nil {
			return cols, eris.Wrap(err, "store: marshal label scan")
		}
	}
	if r.Analysis != nil {
		if cols.analysis, err = json.Marshal(r.Analysis); err != nil {
			return cols, eris.Wrap(err, "store: marshal analysis")
		}
	}
	return cols, nil
}

func decodeReportOutcomes(r *model.InspectionReport, labelScan, analysis []byte) error {
	if len(labelScan) > 0 {
		r.LabelScan = &model.LabelScanOutcome{}
		if err := json.Unmarshal(labelScan, r.LabelScan); err != nil {
			return eris.Wrap(err, "store: unmarshal label scan")
		}
	}
	if len(analysis) > 0 {
		r.Analysis = &model.EquipmentAnalysis{}
		if err := json.Unmarshal(analysis, r.Analysis); err != nil {
			return eris.Wrap(err, "store: unmarshal analysis")
		}
	}
	return nil
}

// attachImages fills the report's ordered image references.
func attachImages(r *model.InspectionReport, images []model.Image) {
	r.LabelImages = []model.ImageRef{}
	r.EquipmentImages = []model.ImageRef{}
	for i := range images {
		r.AddImage(images[i].Kind, images[i].Ref())
	}
}

// prepareNewImage validates an image and assigns its id, size and capture time.
func prepareNewImage(img *model.Image, now time.Time) error {
	if img.ReportID == "" {
		return eris.New("store: image requires a report id")
	}
	if !img.Kind.Valid() {
		return eris.Errorf("store: unknown image kind %q", img.Kind)
	}
	if len(img.Data) == 0 {
		return eris.New("store: empty image")
	}
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	if img.CapturedAt.IsZero() {
		img.CapturedAt = now
	}
	img.Size = int64(len(img.Data))
	return nil
}
