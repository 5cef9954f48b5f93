package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ReportStatus represents the current state of an inspection report.
type ReportStatus string

const (
	ReportStatusDraft      ReportStatus = "draft"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusError      ReportStatus = "error"
)

// ErrInvalidTransition is returned when a report status change is not allowed.
var ErrInvalidTransition = eris.New("invalid report status transition")

// reportTransitions lists the allowed next states for each status.
var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusDraft:      {ReportStatusProcessing},
	ReportStatusProcessing: {ReportStatusCompleted, ReportStatusError},
}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusProcessing, ReportStatusCompleted, ReportStatusError:
		return true
	}
	return false
}

// Terminal reports whether no transition out of s is allowed.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusError
}

// CanTransition reports whether moving from s to next is allowed.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ImageKind distinguishes nameplate photos from equipment-body photos.
type ImageKind string

const (
	ImageKindLabel     ImageKind = "label"
	ImageKindEquipment ImageKind = "equipment"
)

// Valid reports whether k is a known image kind.
func (k ImageKind) Valid() bool {
	return k == ImageKindLabel || k == ImageKindEquipment
}

// ImageRef is a captured image as referenced from a report.
type ImageRef struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"capturedAt"`
	Size       int64     `json:"size"`
}

// Image is a stored image blob with its metadata.
type Image struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"reportId"`
	Kind        ImageKind `json:"kind"`
	ContentType string    `json:"contentType"`
	Data        []byte    `json:"-"`
	Size        int64     `json:"size"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// Ref builds the report-facing reference for the image.
func (img *Image) Ref() ImageRef {
	return ImageRef{
		ID:         img.ID,
		URL:        "/api/images/" + img.ID,
		CapturedAt: img.CapturedAt,
		Size:       img.Size,
	}
}

// InspectionReport aggregates one inspection session.
type InspectionReport struct {
	ID              string             `json:"id"`
	EquipmentID     string             `json:"equipmentId,omitempty"`
	LabelImages     []ImageRef         `json:"labelImages"`
	EquipmentImages []ImageRef         `json:"equipmentImages"`
	LabelScan       *LabelScanOutcome  `json:"labelScan,omitempty"`
	Analysis        *EquipmentAnalysis `json:"analysis,omitempty"`
	Status          ReportStatus       `json:"status"`
	Error           string             `json:"error,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

// Transition moves the report to next, maintaining the invariant that
// CompletedAt is set if and only if the status is completed.
func (r *InspectionReport) Transition(next ReportStatus, now time.Time) error {
	if !r.Status.CanTransition(next) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", r.Status, next)
	}
	r.Status = next
	if next == ReportStatusCompleted {
		t := now
		r.CompletedAt = &t
	} else {
		r.CompletedAt = nil
	}
	return nil
}

// Fail moves a processing report to the error state with a message.
func (r *InspectionReport) Fail(msg string, now time.Time) error {
	if err := r.Transition(ReportStatusError, now); err != nil {
		return err
	}
	r.Error = msg
	return nil
}

// Validate checks the status/completedAt invariant.
func (r *InspectionReport) Validate() error {
	if !r.Status.Valid() {
		return eris.Errorf("unknown report status %q", r.Status)
	}
	if (r.Status == ReportStatusCompleted) != (r.CompletedAt != nil) {
		return eris.Errorf("report %s: completedAt must be set iff status is completed", r.ID)
	}
	return nil
}

// Images returns the report's references for the given kind.
func (r *InspectionReport) Images(kind ImageKind) []ImageRef {
	if kind == ImageKindLabel {
		return r.LabelImages
	}
	return r.EquipmentImages
}

// AddImage appends an image reference in capture order.
func (r *InspectionReport) AddImage(kind ImageKind, ref ImageRef) {
	if kind == ImageKindLabel {
		r.LabelImages = append(r.LabelImages, ref)
		return
	}
	r.EquipmentImages = append(r.EquipmentImages, ref)
}
