package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

// NormalizeEquipmentAnalysis converts the raw text of one equipment-analysis
// model call into an EquipmentAnalysis. Missing failures and recommendations
// default to empty lists; a missing condition or urgency stays nil.
func NormalizeEquipmentAnalysis(raw string) (*model.EquipmentAnalysis, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	out := &model.EquipmentAnalysis{
		Failures:        failureList(obj["failures"]),
		Recommendations: stringList(obj["recommendations"]),
	}
	out.EquipmentType, _ = textValue(obj["equipmentType"])
	out.EquipmentDescription, _ = textValue(obj["equipmentDescription"])

	if s, ok := textValue(obj["condition"]); ok && s != "" {
		c := model.Condition(s)
		out.Condition = &c
	}
	if s, ok := textValue(obj["urgency"]); ok && s != "" {
		u := model.Urgency(s)
		out.Urgency = &u
	}

	return out, nil
}

func failureList(raw json.RawMessage) []model.FailureFinding {
	out := []model.FailureFinding{}
	if isNull(raw) {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}

	for i, item := range items {
		f, ok := decodeFailure(item)
		if !ok {
			continue
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("failure-%d", i+1)
		}
		out = append(out, f)
	}
	return out
}

// decodeFailure reads one failure entry. A bare string is kept as the
// description of an "other" finding; other non-object entries are dropped.
func decodeFailure(raw json.RawMessage) (model.FailureFinding, bool) {
	entry := subObject(raw)
	if entry == nil {
		if s, ok := textValue(raw); ok && s != "" {
			return model.FailureFinding{
				Type:            model.FailureOther,
				Description:     s,
				Recommendations: []string{},
			}, true
		}
		return model.FailureFinding{}, false
	}

	var f model.FailureFinding
	f.ID, _ = textValue(entry["id"])
	if s, ok := textValue(entry["type"]); ok {
		f.Type = model.FailureType(s)
	}
	if s, ok := textValue(entry["severity"]); ok {
		f.Severity = model.Severity(s)
	}
	f.Description, _ = textValue(entry["description"])
	f.Location, _ = textValue(entry["location"])
	if c, ok := floatValue(entry["confidence"]); ok {
		f.Confidence = clampConfidence(c)
	}
	f.Recommendations = stringList(entry["recommendations"])
	return f, true
}
