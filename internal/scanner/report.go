package scanner

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/monitoring"
	"github.com/xMathyu/hvac-scanner/internal/normalize"
)

// ErrNoStore is returned by operations that need persistence when the
// service was built without a store.
var ErrNoStore = eris.New("scanner: no store configured")

// parseFailureMessage is recorded on a report whose model response could
// not be read.
const parseFailureMessage = "The photos could not be processed. Retake them and try again."

// ProcessReport runs a draft report through the model: the label images
// are scanned, the equipment images analyzed, and the report completed.
// Any failure moves the report to the error state; the failed report is
// returned together with the cause.
func (s *Service) ProcessReport(ctx context.Context, reportID string) (*model.InspectionReport, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "scanner: load report")
	}
	if err := report.Transition(model.ReportStatusProcessing, s.now()); err != nil {
		return nil, eris.Wrap(err, "scanner: start processing")
	}
	if err := s.store.UpdateReport(ctx, report); err != nil {
		return nil, eris.Wrap(err, "scanner: mark processing")
	}

	log := zap.L().With(zap.String("report_id", reportID))
	log.Info("scanner: processing report",
		zap.Int("label_images", len(report.LabelImages)),
		zap.Int("equipment_images", len(report.EquipmentImages)),
	)

	if procErr := s.runReport(ctx, report); procErr != nil {
		log.Warn("scanner: report processing failed", zap.Error(procErr))
		if err := report.Fail(failureMessage(procErr), s.now()); err != nil {
			return nil, eris.Wrap(err, "scanner: fail report")
		}
		if err := s.store.UpdateReport(context.WithoutCancel(ctx), report); err != nil {
			return nil, eris.Wrap(err, "scanner: save failed report")
		}
		monitoring.ReportsProcessed.WithLabelValues(string(model.ReportStatusError)).Inc()
		return report, procErr
	}

	if err := report.Transition(model.ReportStatusCompleted, s.now()); err != nil {
		return nil, eris.Wrap(err, "scanner: complete report")
	}
	if err := s.store.UpdateReport(ctx, report); err != nil {
		return nil, eris.Wrap(err, "scanner: save completed report")
	}
	monitoring.ReportsProcessed.WithLabelValues(string(model.ReportStatusCompleted)).Inc()
	log.Info("scanner: report completed", zap.String("equipment_id", report.EquipmentID))
	return report, nil
}

func (s *Service) runReport(ctx context.Context, report *model.InspectionReport) error {
	labelImages, err := s.storedImages(ctx, report.ID, model.ImageKindLabel)
	if err != nil {
		return err
	}
	equipmentImages, err := s.storedImages(ctx, report.ID, model.ImageKindEquipment)
	if err != nil {
		return err
	}
	if len(labelImages) == 0 && len(equipmentImages) == 0 {
		return eris.Wrap(ErrInvalidImage, "report has no images")
	}

	if len(labelImages) > 0 {
		scan, err := s.ScanLabel(ctx, labelImages, ScanOptions{})
		if err != nil {
			return err
		}
		report.LabelScan = scan.Outcome
		if err := s.linkEquipment(ctx, report, scan); err != nil {
			return err
		}
	}

	if len(equipmentImages) > 0 {
		analysis, err := s.AnalyzeEquipment(ctx, equipmentImages)
		if err != nil {
			return err
		}
		report.Analysis = analysis
	}
	return nil
}

// linkEquipment creates the scanned equipment record for a report that has
// none yet, unless the scan is held for review.
func (s *Service) linkEquipment(ctx context.Context, report *model.InspectionReport, scan *ScanResult) error {
	if report.EquipmentID != "" || !s.mayPersist(scan) {
		return nil
	}
	if scan.Persisted && scan.Outcome.Equipment.ID != "" {
		report.EquipmentID = scan.Outcome.Equipment.ID
		return nil
	}
	rec := scan.Outcome.Equipment
	rec.ID = ""
	if err := s.store.CreateEquipment(ctx, &rec); err != nil {
		return eris.Wrap(err, "scanner: create report equipment")
	}
	report.EquipmentID = rec.ID
	return nil
}

func (s *Service) storedImages(ctx context.Context, reportID string, kind model.ImageKind) ([]Image, error) {
	stored, err := s.store.ListImages(ctx, reportID, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "scanner: load %s images", kind)
	}
	out := make([]Image, len(stored))
	for i, img := range stored {
		out[i] = FromStored(img)
	}
	return out, nil
}

func failureMessage(err error) string {
	if normalize.IsParseError(err) {
		return parseFailureMessage
	}
	return err.Error()
}
