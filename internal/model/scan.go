package model

// LabelScanOutcome is the transient result of one label-scan call.
type LabelScanOutcome struct {
	Confidence       float64         `json:"confidence"`
	Equipment        EquipmentRecord `json:"equipment"`
	RawText          string          `json:"rawText"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// LowConfidence reports whether the outcome falls below threshold and
// should be held for manual review.
func (o *LabelScanOutcome) LowConfidence(threshold float64) bool {
	return o.Confidence < threshold
}
