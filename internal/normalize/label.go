package normalize

import (
	"encoding/json"
	"time"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

const (
	// DefaultScanConfidence is the overall confidence assumed when the model
	// reports none.
	DefaultScanConfidence = 0.6

	// DefaultFieldConfidence is the per-field confidence given to synthesized
	// provenance entries when the model reported no overall confidence.
	DefaultFieldConfidence = 0.8
)

// NormalizeLabelScan converts the raw text of one label-scan model call into
// a LabelScanOutcome. requestedAt is when the model call was issued and is
// used to report the processing duration.
func NormalizeLabelScan(raw string, requestedAt time.Time) (*model.LabelScanOutcome, error) {
	return normalizeLabelScan(raw, requestedAt, time.Now().UTC())
}

func normalizeLabelScan(raw string, requestedAt, now time.Time) (*model.LabelScanOutcome, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	structured := subObject(obj["structuredData"])

	overall := DefaultScanConfidence
	fieldConfidence := DefaultFieldConfidence
	if c, ok := floatValue(obj["confidence"]); ok {
		overall = clampConfidence(c)
		fieldConfidence = overall
	}

	rec := model.EquipmentRecord{
		CreatedAt: now,
		UpdatedAt: now,
	}
	for key, val := range structured {
		if isNull(val) {
			continue
		}
		assignField(&rec, key, val)
	}

	rec.FieldMetadata = buildProvenance(structured, subObject(obj["fieldMetadata"]), fieldConfidence)

	rawText, _ := textValue(obj["extractedText"])

	var elapsed time.Duration
	if !requestedAt.IsZero() && now.After(requestedAt) {
		elapsed = now.Sub(requestedAt)
	}

	return &model.LabelScanOutcome{
		Confidence:       overall,
		Equipment:        rec,
		RawText:          rawText,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// buildProvenance keeps every explicit entry the model supplied and fills
// the gaps: each non-null structured field without an entry gets a scanned
// entry at fieldConfidence.
func buildProvenance(structured, metadata object, fieldConfidence float64) map[string]model.FieldProvenance {
	out := make(map[string]model.FieldProvenance, len(structured))

	for key, raw := range metadata {
		if p, ok := decodeProvenance(raw); ok {
			out[key] = p
		}
	}

	for key, val := range structured {
		if isNull(val) {
			continue
		}
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = model.ScannedProvenance(fieldConfidence)
	}

	return out
}

// decodeProvenance reads one fieldMetadata entry. Entries that are not
// objects are treated as absent.
func decodeProvenance(raw json.RawMessage) (model.FieldProvenance, bool) {
	entry := subObject(raw)
	if entry == nil {
		return model.FieldProvenance{}, false
	}

	var p model.FieldProvenance
	if src, ok := textValue(entry["source"]); ok {
		p.Source = model.ProvenanceSource(src)
	}
	if c, ok := floatValue(entry["confidence"]); ok {
		c = clampConfidence(c)
		p.Confidence = &c
	}
	if basis, ok := textValue(entry["inferenceBasis"]); ok {
		p.InferenceBasis = basis
	}
	return p, true
}

// assignField copies one structuredData value onto the record. Values that
// cannot be coerced to the field's type, and unrecognized keys, are kept in
// Extra under their original key.
func assignField(rec *model.EquipmentRecord, key string, val json.RawMessage) {
	var ok bool
	switch key {
	case model.FieldBrand:
		rec.Brand, ok = textField(val)
	case model.FieldModel:
		rec.Model, ok = textField(val)
	case model.FieldSerialNumber:
		rec.SerialNumber, ok = textField(val)
	case model.FieldCapacity:
		rec.Capacity, ok = textField(val)
	case model.FieldManufactureDate:
		rec.ManufactureDate, ok = textField(val)
	case model.FieldVoltage:
		rec.Voltage, ok = textField(val)
	case model.FieldAmperage:
		rec.Amperage, ok = textField(val)
	case model.FieldRefrigerantType:
		rec.RefrigerantType, ok = textField(val)
	case model.FieldEquipmentType:
		rec.EquipmentType, ok = textField(val)
	case model.FieldBTU:
		var n int
		if n, ok = intValue(val); ok {
			rec.BTU = &n
		}
	case model.FieldSEERRating:
		var f float64
		if f, ok = floatValue(val); ok {
			rec.SEERRating = &f
		}
	case model.FieldEERRating:
		var f float64
		if f, ok = floatValue(val); ok {
			rec.EERRating = &f
		}
	}
	if ok {
		return
	}

	if rec.Extra == nil {
		rec.Extra = make(map[string]any)
	}
	rec.Extra[key] = anyValue(val)
}

func textField(val json.RawMessage) (*string, bool) {
	s, ok := textValue(val)
	if !ok {
		return nil, false
	}
	return &s, true
}
