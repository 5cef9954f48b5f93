package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

// MetricsSnapshot holds a point-in-time view of inspection activity.
type MetricsSnapshot struct {
	// Report metrics (within lookback window).
	ReportsTotal      int     `json:"reports_total"`
	ReportsDraft      int     `json:"reports_draft"`
	ReportsProcessing int     `json:"reports_processing"`
	ReportsCompleted  int     `json:"reports_completed"`
	ReportsErrored    int     `json:"reports_errored"`
	ReportFailRate    float64 `json:"report_fail_rate"`

	// Scan quality.
	LabelScans        int     `json:"label_scans"`
	LowConfidence     int     `json:"low_confidence"`
	LowConfidenceRate float64 `json:"low_confidence_rate"`
	AvgConfidence     float64 `json:"avg_confidence"`

	// Findings that need a technician soon.
	CriticalFindings int `json:"critical_findings"`
	ImmediateUrgency int `json:"immediate_urgency"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ReportLister is the part of the store the collector reads.
type ReportLister interface {
	ListReports(ctx context.Context, filter store.ReportFilter) ([]model.InspectionReport, error)
}

// Collector gathers metrics from stored inspection reports.
type Collector struct {
	reports             ReportLister
	confidenceThreshold float64
	now                 func() time.Time
}

// NewCollector creates a new metrics collector. Label scans below
// confidenceThreshold count as low confidence.
func NewCollector(reports ReportLister, confidenceThreshold float64) *Collector {
	return &Collector{
		reports:             reports,
		confidenceThreshold: confidenceThreshold,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	reports, err := c.reports.ListReports(ctx, store.ReportFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list reports")
	}

	snap.ReportsTotal = len(reports)
	var totalConfidence float64

	for _, r := range reports {
		switch r.Status {
		case model.ReportStatusDraft:
			snap.ReportsDraft++
		case model.ReportStatusProcessing:
			snap.ReportsProcessing++
		case model.ReportStatusCompleted:
			snap.ReportsCompleted++
		case model.ReportStatusError:
			snap.ReportsErrored++
		}

		if r.LabelScan != nil {
			snap.LabelScans++
			totalConfidence += r.LabelScan.Confidence
			if r.LabelScan.LowConfidence(c.confidenceThreshold) {
				snap.LowConfidence++
			}
		}

		if r.Analysis != nil {
			for _, f := range r.Analysis.Failures {
				if f.Severity == model.SeverityCritical {
					snap.CriticalFindings++
				}
			}
			if r.Analysis.Urgency != nil && *r.Analysis.Urgency == model.UrgencyImmediate {
				snap.ImmediateUrgency++
			}
		}
	}

	finished := snap.ReportsCompleted + snap.ReportsErrored
	if finished > 0 {
		snap.ReportFailRate = float64(snap.ReportsErrored) / float64(finished)
	}
	if snap.LabelScans > 0 {
		snap.LowConfidenceRate = float64(snap.LowConfidence) / float64(snap.LabelScans)
		snap.AvgConfidence = totalConfidence / float64(snap.LabelScans)
	}

	return snap, nil
}
