package model

// FailureType categorizes a detected equipment problem.
type FailureType string

const (
	FailureCorrosion            FailureType = "corrosion"
	FailureRefrigerantLeak      FailureType = "refrigerant_leak"
	FailureDamagedCoils         FailureType = "damaged_coils"
	FailureDirtyFilter          FailureType = "dirty_filter"
	FailureBlockedAirflow       FailureType = "blocked_airflow"
	FailureElectricalDamage     FailureType = "electrical_damage"
	FailureMissingComponent     FailureType = "missing_component"
	FailureWearAndTear          FailureType = "wear_and_tear"
	FailureImproperInstallation FailureType = "improper_installation"
	FailureOther                FailureType = "other"
)

// FailureTypes lists every failure category.
var FailureTypes = []FailureType{
	FailureCorrosion, FailureRefrigerantLeak, FailureDamagedCoils, FailureDirtyFilter,
	FailureBlockedAirflow, FailureElectricalDamage, FailureMissingComponent,
	FailureWearAndTear, FailureImproperInstallation, FailureOther,
}

// Valid reports whether t is a known failure category.
func (t FailureType) Valid() bool {
	for _, ft := range FailureTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// Severity of a failure finding. Ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of s; unknown severities rank 0.
func (s Severity) Rank() int { return severityRank[s] }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Condition is the overall equipment condition.
// Ordered excellent > good > fair > poor > critical.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionCritical  Condition = "critical"
)

var conditionRank = map[Condition]int{
	ConditionCritical:  1,
	ConditionPoor:      2,
	ConditionFair:      3,
	ConditionGood:      4,
	ConditionExcellent: 5,
}

// Rank returns the ordinal of c, higher meaning better; unknown values rank 0.
func (c Condition) Rank() int { return conditionRank[c] }

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool { return c.Rank() > 0 }

// Urgency is how soon maintenance is needed.
// Ordered immediate > within_week > within_month > routine > none.
type Urgency string

const (
	UrgencyImmediate   Urgency = "immediate"
	UrgencyWithinWeek  Urgency = "within_week"
	UrgencyWithinMonth Urgency = "within_month"
	UrgencyRoutine     Urgency = "routine"
	UrgencyNone        Urgency = "none"
)

var urgencyRank = map[Urgency]int{
	UrgencyNone:        1,
	UrgencyRoutine:     2,
	UrgencyWithinMonth: 3,
	UrgencyWithinWeek:  4,
	UrgencyImmediate:   5,
}

// Rank returns the ordinal of u, higher meaning more urgent; unknown values rank 0.
func (u Urgency) Rank() int { return urgencyRank[u] }

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool { return u.Rank() > 0 }

// FailureFinding is one problem detected in an equipment analysis.
type FailureFinding struct {
	ID              string      `json:"id"`
	Type            FailureType `json:"type"`
	Severity        Severity    `json:"severity"`
	Description     string      `json:"description"`
	Location        string      `json:"location,omitempty"`
	Confidence      float64     `json:"confidence"`
	Recommendations []string    `json:"recommendations"`
}

// EquipmentAnalysis is the normalized outcome of an equipment-condition
// analysis. Condition and Urgency are nil when the model did not report them.
type EquipmentAnalysis struct {
	EquipmentType        string           `json:"equipmentType,omitempty"`
	EquipmentDescription string           `json:"equipmentDescription,omitempty"`
	Failures             []FailureFinding `json:"failures"`
	Condition            *Condition       `json:"condition"`
	Urgency              *Urgency         `json:"urgency"`
	Recommendations      []string         `json:"recommendations"`
}

// WorstSeverity returns the highest severity among the findings, or "" if none.
func (a *EquipmentAnalysis) WorstSeverity() Severity {
	var worst Severity
	for _, f := range a.Failures {
		if f.Severity.Rank() > worst.Rank() {
			worst = f.Severity
		}
	}
	return worst
}
