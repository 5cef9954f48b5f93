package model

// ProvenanceSource records where a field value came from.
type ProvenanceSource string

const (
	SourceScanned    ProvenanceSource = "scanned"     // Read directly off the label
	SourceAIInferred ProvenanceSource = "ai_inferred" // Derived by the model from other evidence
	SourceManual     ProvenanceSource = "manual"      // Entered or corrected by a technician
)

// Valid reports whether s is one of the known provenance sources.
func (s ProvenanceSource) Valid() bool {
	switch s {
	case SourceScanned, SourceAIInferred, SourceManual:
		return true
	}
	return false
}

// FieldProvenance tracks how a single equipment field was obtained.
type FieldProvenance struct {
	Source         ProvenanceSource `json:"source"`
	Confidence     *float64         `json:"confidence,omitempty"`
	InferenceBasis string           `json:"inferenceBasis,omitempty"`
}

// ScannedProvenance builds the default entry used when the model gave no
// explicit metadata for a field.
func ScannedProvenance(confidence float64) FieldProvenance {
	c := confidence
	return FieldProvenance{Source: SourceScanned, Confidence: &c}
}

// ManualProvenance marks a field as technician-entered.
func ManualProvenance() FieldProvenance {
	return FieldProvenance{Source: SourceManual}
}

// ConfidenceOr returns the entry's confidence, or def when unset.
func (p FieldProvenance) ConfidenceOr(def float64) float64 {
	if p.Confidence == nil {
		return def
	}
	return *p.Confidence
}
