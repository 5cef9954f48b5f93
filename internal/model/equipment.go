package model

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// EquipmentType is the equipment category.
type EquipmentType string

const (
	EquipmentAirConditioner EquipmentType = "air_conditioner"
	EquipmentHeatPump       EquipmentType = "heat_pump"
	EquipmentFurnace        EquipmentType = "furnace"
	EquipmentDuctwork       EquipmentType = "ductwork"
	EquipmentOther          EquipmentType = "other"
)

// Valid reports whether t is one of the enumerated categories.
func (t EquipmentType) Valid() bool {
	switch t {
	case EquipmentAirConditioner, EquipmentHeatPump, EquipmentFurnace, EquipmentDuctwork, EquipmentOther:
		return true
	}
	return false
}

// equipmentAliases maps the loose labels models and technicians use onto
// the enumerated categories.
var equipmentAliases = map[string]EquipmentType{
	"ac":              EquipmentAirConditioner,
	"a/c":             EquipmentAirConditioner,
	"air conditioner": EquipmentAirConditioner,
	"air_conditioner": EquipmentAirConditioner,
	"condenser":       EquipmentAirConditioner,
	"condensing unit": EquipmentAirConditioner,
	"rtu":             EquipmentAirConditioner,
	"rooftop unit":    EquipmentAirConditioner,
	"heat pump":       EquipmentHeatPump,
	"heat_pump":       EquipmentHeatPump,
	"heatpump":        EquipmentHeatPump,
	"furnace":         EquipmentFurnace,
	"gas furnace":     EquipmentFurnace,
	"air handler":     EquipmentFurnace,
	"ductwork":        EquipmentDuctwork,
	"duct":            EquipmentDuctwork,
	"ducts":           EquipmentDuctwork,
	"other":           EquipmentOther,
}

// ParseEquipmentType maps a free-form category onto the enumeration.
// Unknown or empty values map to EquipmentOther.
func ParseEquipmentType(s string) EquipmentType {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := equipmentAliases[key]; ok {
		return t
	}
	return EquipmentOther
}

// Label field keys, as used in the model's structuredData and in fieldMetadata.
const (
	FieldBrand           = "brand"
	FieldModel           = "model"
	FieldSerialNumber    = "serialNumber"
	FieldCapacity        = "capacity"
	FieldBTU             = "btu"
	FieldManufactureDate = "manufactureDate"
	FieldVoltage         = "voltage"
	FieldAmperage        = "amperage"
	FieldRefrigerantType = "refrigerantType"
	FieldSEERRating      = "seerRating"
	FieldEERRating       = "eerRating"
	FieldEquipmentType   = "equipmentType"
)

// LabelFieldKeys lists every recognized label field in display order.
var LabelFieldKeys = []string{
	FieldBrand, FieldModel, FieldSerialNumber, FieldCapacity, FieldBTU,
	FieldManufactureDate, FieldVoltage, FieldAmperage, FieldRefrigerantType,
	FieldSEERRating, FieldEERRating, FieldEquipmentType,
}

// IsLabelField reports whether key is a recognized label field.
func IsLabelField(key string) bool {
	for _, k := range LabelFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}

// EquipmentRecord is one physical HVAC unit.
type EquipmentRecord struct {
	ID string `json:"id"`

	Brand           *string  `json:"brand,omitempty"`
	Model           *string  `json:"model,omitempty"`
	SerialNumber    *string  `json:"serialNumber,omitempty"`
	Capacity        *string  `json:"capacity,omitempty"` // freeform: tons, BTU, or unitless
	BTU             *int     `json:"btu,omitempty"`
	ManufactureDate *string  `json:"manufactureDate,omitempty"`
	Voltage         *string  `json:"voltage,omitempty"`
	Amperage        *string  `json:"amperage,omitempty"`
	RefrigerantType *string  `json:"refrigerantType,omitempty"`
	SEERRating      *float64 `json:"seerRating,omitempty"`
	EERRating       *float64 `json:"eerRating,omitempty"`
	EquipmentType   *string  `json:"equipmentType,omitempty"`

	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	FieldMetadata map[string]FieldProvenance `json:"fieldMetadata,omitempty"`
	Extra         map[string]any             `json:"extra,omitempty"` // unrecognized model keys, passed through

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Category returns the enumerated equipment category for the record.
func (r *EquipmentRecord) Category() EquipmentType {
	if r.EquipmentType == nil {
		return EquipmentOther
	}
	return ParseEquipmentType(*r.EquipmentType)
}

// StructuredData rebuilds the label fields as a flat mapping: every
// non-nil recognized field plus the pass-through extras.
func (r *EquipmentRecord) StructuredData() map[string]any {
	out := make(map[string]any, len(LabelFieldKeys)+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	put := func(key string, v any) {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return
		}
		out[key] = rv.Elem().Interface()
	}
	put(FieldBrand, r.Brand)
	put(FieldModel, r.Model)
	put(FieldSerialNumber, r.SerialNumber)
	put(FieldCapacity, r.Capacity)
	put(FieldBTU, r.BTU)
	put(FieldManufactureDate, r.ManufactureDate)
	put(FieldVoltage, r.Voltage)
	put(FieldAmperage, r.Amperage)
	put(FieldRefrigerantType, r.RefrigerantType)
	put(FieldSEERRating, r.SEERRating)
	put(FieldEERRating, r.EERRating)
	put(FieldEquipmentType, r.EquipmentType)
	return out
}

// ChangedFields returns the sorted keys whose structured value differs
// between before and after.
func ChangedFields(before, after *EquipmentRecord) []string {
	a, b := before.StructuredData(), after.StructuredData()
	seen := make(map[string]bool, len(a)+len(b))
	var changed []string
	for k, v := range b {
		seen[k] = true
		if old, ok := a[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range a {
		if !seen[k] {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// MarkManual stamps manual provenance on the given fields. Fields that are
// now empty lose their provenance entry.
func (r *EquipmentRecord) MarkManual(fields ...string) {
	data := r.StructuredData()
	for _, f := range fields {
		if _, ok := data[f]; !ok {
			delete(r.FieldMetadata, f)
			continue
		}
		if r.FieldMetadata == nil {
			r.FieldMetadata = make(map[string]FieldProvenance)
		}
		r.FieldMetadata[f] = ManualProvenance()
	}
}

// Touch bumps UpdatedAt to now, never moving it backwards.
func (r *EquipmentRecord) Touch(now time.Time) {
	if now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
}

// MissingProvenance returns the sorted populated fields that lack a
// provenance entry.
func (r *EquipmentRecord) MissingProvenance() []string {
	var missing []string
	for k := range r.StructuredData() {
		if _, ok := r.FieldMetadata[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// Label returns a short display name such as "Carrier 24ACC636".
func (r *EquipmentRecord) Label() string {
	var parts []string
	if r.Brand != nil && *r.Brand != "" {
		parts = append(parts, *r.Brand)
	}
	if r.Model != nil && *r.Model != "" {
		parts = append(parts, *r.Model)
	}
	if len(parts) == 0 {
		if r.ID != "" {
			return "Equipment " + r.ID
		}
		return "Unidentified equipment"
	}
	return strings.Join(parts, " ")
}
