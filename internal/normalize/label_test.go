package normalize

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xMathyu/hvac-scanner/internal/model"
)

var (
	testRequestedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testNow         = testRequestedAt.Add(1500 * time.Millisecond)
)

func normalizeTest(t *testing.T, raw string) *model.LabelScanOutcome {
	t.Helper()
	out, err := normalizeLabelScan(raw, testRequestedAt, testNow)
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func confidenceOf(t *testing.T, p model.FieldProvenance) float64 {
	t.Helper()
	require.NotNil(t, p.Confidence)
	return *p.Confidence
}

func TestNormalizeLabelScan_FencedScenario(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, "```json\n{\"structuredData\":{\"brand\":\"Carrier\",\"btu\":36000},\"confidence\":0.9}\n```")

	rec := out.Equipment
	require.NotNil(t, rec.Brand)
	assert.Equal(t, "Carrier", *rec.Brand)
	require.NotNil(t, rec.BTU)
	assert.Equal(t, 36000, *rec.BTU)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)

	require.Len(t, rec.FieldMetadata, 2)
	for _, key := range []string{"brand", "btu"} {
		p := rec.FieldMetadata[key]
		assert.Equal(t, model.SourceScanned, p.Source, key)
		assert.InDelta(t, 0.9, confidenceOf(t, p), 1e-9, key)
	}
}

func TestNormalizeLabelScan_ResultShape(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"extractedText":"CARRIER 24ACC636A003","structuredData":{"model":"24ACC636A003"},"confidence":0.8}`)

	assert.Empty(t, out.Equipment.ID)
	assert.Equal(t, testNow, out.Equipment.CreatedAt)
	assert.Equal(t, testNow, out.Equipment.UpdatedAt)
	assert.Equal(t, "CARRIER 24ACC636A003", out.RawText)
	assert.Equal(t, int64(1500), out.ProcessingTimeMs)
}

func TestNormalizeLabelScan_MissingConfidenceDefaults(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"structuredData":{"brand":"Trane","voltage":"208-230V","model":null}}`)

	assert.Equal(t, DefaultScanConfidence, out.Confidence)
	assert.Equal(t, 0.6, out.Confidence)

	require.Len(t, out.Equipment.FieldMetadata, 2)
	for key, p := range out.Equipment.FieldMetadata {
		assert.Equal(t, model.SourceScanned, p.Source, key)
		assert.Equal(t, 0.8, confidenceOf(t, p), key)
	}
	assert.NotContains(t, out.Equipment.FieldMetadata, "model")
	assert.Nil(t, out.Equipment.Model)
}

func TestNormalizeLabelScan_NullConfidenceDefaults(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"structuredData":{"brand":"Trane"},"confidence":null}`)
	assert.Equal(t, 0.6, out.Confidence)
	assert.Equal(t, 0.8, confidenceOf(t, out.Equipment.FieldMetadata["brand"]))
}

func TestNormalizeLabelScan_SynthesizesOneEntryPerNonNullKey(t *testing.T) {
	t.Parallel()

	raw := `{"structuredData":{
		"brand":"Goodman","model":"GSX140361","serialNumber":null,"capacity":"3 Ton",
		"btu":36000,"seerRating":14,"equipmentType":"air_conditioner","cabinetColor":"beige"
	},"confidence":0.75}`
	out := normalizeTest(t, raw)

	want := []string{"brand", "model", "capacity", "btu", "seerRating", "equipmentType", "cabinetColor"}
	require.Len(t, out.Equipment.FieldMetadata, len(want))
	for _, key := range want {
		p, ok := out.Equipment.FieldMetadata[key]
		require.True(t, ok, key)
		assert.Equal(t, model.SourceScanned, p.Source)
		assert.InDelta(t, 0.75, confidenceOf(t, p), 1e-9)
	}
	assert.Empty(t, out.Equipment.MissingProvenance())
}

func TestNormalizeLabelScan_PreservesExplicitProvenance(t *testing.T) {
	t.Parallel()

	raw := `{
		"structuredData":{"brand":"Rheem","btu":48000,"refrigerantType":"R-410A"},
		"fieldMetadata":{
			"btu":{"source":"ai_inferred","confidence":0.55,"inferenceBasis":"derived from model number suffix 048"},
			"brand":{"source":"scanned","confidence":0.99}
		},
		"confidence":0.7
	}`
	out := normalizeTest(t, raw)
	meta := out.Equipment.FieldMetadata

	assert.Equal(t, model.SourceAIInferred, meta["btu"].Source)
	assert.InDelta(t, 0.55, confidenceOf(t, meta["btu"]), 1e-9)
	assert.Equal(t, "derived from model number suffix 048", meta["btu"].InferenceBasis)

	assert.Equal(t, model.SourceScanned, meta["brand"].Source)
	assert.InDelta(t, 0.99, confidenceOf(t, meta["brand"]), 1e-9)

	// Gap filled from the overall confidence.
	assert.Equal(t, model.SourceScanned, meta["refrigerantType"].Source)
	assert.InDelta(t, 0.7, confidenceOf(t, meta["refrigerantType"]), 1e-9)
}

func TestNormalizeLabelScan_ExplicitEntryWithoutConfidenceKept(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"structuredData":{"brand":"Lennox"},"fieldMetadata":{"brand":{"source":"scanned"}}}`)
	p := out.Equipment.FieldMetadata["brand"]
	assert.Equal(t, model.SourceScanned, p.Source)
	assert.Nil(t, p.Confidence)
}

func TestNormalizeLabelScan_MissingStructuredData(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{"extractedText":"faded label","confidence":0.2}`,
		`{"structuredData":null}`,
		`{"structuredData":"n/a"}`,
		`{}`,
	} {
		out, err := normalizeLabelScan(raw, testRequestedAt, testNow)
		require.NoError(t, err, raw)
		assert.Empty(t, out.Equipment.StructuredData(), raw)
		assert.Empty(t, out.Equipment.FieldMetadata, raw)
	}
}

func TestNormalizeLabelScan_Coercion(t *testing.T) {
	t.Parallel()

	raw := `{"structuredData":{
		"btu":"36,000 BTU/h",
		"seerRating":"16.5",
		"eerRating":12.2,
		"capacity":3,
		"voltage":"208/230V 1Ph",
		"model":24000
	}}`
	out := normalizeTest(t, raw)
	rec := out.Equipment

	require.NotNil(t, rec.BTU)
	assert.Equal(t, 36000, *rec.BTU)
	require.NotNil(t, rec.SEERRating)
	assert.InDelta(t, 16.5, *rec.SEERRating, 1e-9)
	require.NotNil(t, rec.EERRating)
	assert.InDelta(t, 12.2, *rec.EERRating, 1e-9)
	require.NotNil(t, rec.Capacity)
	assert.Equal(t, "3", *rec.Capacity)
	require.NotNil(t, rec.Model)
	assert.Equal(t, "24000", *rec.Model)
	assert.Empty(t, rec.Extra)
}

func TestNormalizeLabelScan_UncoercibleValuesPassThrough(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"structuredData":{"btu":"unknown","brand":{"name":"Carrier"},"phase":"3"}}`)
	rec := out.Equipment

	assert.Nil(t, rec.BTU)
	assert.Nil(t, rec.Brand)
	assert.Equal(t, "unknown", rec.Extra["btu"])
	assert.Equal(t, map[string]any{"name": "Carrier"}, rec.Extra["brand"])
	assert.Equal(t, "3", rec.Extra["phase"])

	// Provenance still covers every populated key.
	assert.Empty(t, rec.MissingProvenance())
	assert.Len(t, rec.FieldMetadata, 3)
}

func TestNormalizeLabelScan_FractionalBTUKept(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{"structuredData":{"btu":36000.7}}`)
	rec := out.Equipment

	assert.Nil(t, rec.BTU)
	assert.Equal(t, 36000.7, rec.Extra["btu"])
	assert.Equal(t, 36000.7, rec.StructuredData()["btu"])
}

func TestNormalizeLabelScan_FieldConfidenceClamped(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `{
		"structuredData":{"brand":"Goodman","model":"GSX140361","btu":36000},
		"fieldMetadata":{
			"brand":{"source":"scanned","confidence":90},
			"model":{"source":"scanned","confidence":-0.4},
			"btu":{"source":"ai_inferred","confidence":0.65}
		}
	}`)
	meta := out.Equipment.FieldMetadata

	assert.InDelta(t, 0.9, confidenceOf(t, meta["brand"]), 1e-9)
	assert.InDelta(t, 0, confidenceOf(t, meta["model"]), 1e-9)
	assert.InDelta(t, 0.65, confidenceOf(t, meta["btu"]), 1e-9)
}

func TestNormalizeLabelScan_ConfidenceAlwaysInRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want float64
	}{
		{`{"confidence":0.42}`, 0.42},
		{`{"confidence":85}`, 0.85},
		{`{"confidence":-3}`, 0},
		{`{"confidence":250}`, 1},
		{`{"confidence":"0.9"}`, 0.9},
		{`{"confidence":"high"}`, DefaultScanConfidence},
	}
	for _, tt := range tests {
		out := normalizeTest(t, tt.raw)
		assert.InDelta(t, tt.want, out.Confidence, 1e-9, tt.raw)
		assert.GreaterOrEqual(t, out.Confidence, 0.0)
		assert.LessOrEqual(t, out.Confidence, 1.0)
	}
}

func TestNormalizeLabelScan_Idempotent(t *testing.T) {
	t.Parallel()

	raw := `{
		"extractedText":"TRANE XR16 4TTR6036J1000AA",
		"structuredData":{"brand":"Trane","model":"4TTR6036J1000AA","btu":36000,"seerRating":16,"equipmentType":"heat_pump"},
		"fieldMetadata":{
			"brand":{"source":"scanned","confidence":0.97},
			"model":{"source":"scanned","confidence":0.95},
			"btu":{"source":"ai_inferred","confidence":0.8,"inferenceBasis":"036 in model number"},
			"seerRating":{"source":"ai_inferred","confidence":0.6,"inferenceBasis":"XR16 series"},
			"equipmentType":{"source":"scanned","confidence":0.9}
		},
		"confidence":0.92
	}`
	out := normalizeTest(t, raw)

	var parsed struct {
		ExtractedText  string                           `json:"extractedText"`
		StructuredData map[string]any                   `json:"structuredData"`
		FieldMetadata  map[string]model.FieldProvenance `json:"fieldMetadata"`
		Confidence     float64                          `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))

	assert.Equal(t, parsed.ExtractedText, out.RawText)
	assert.Equal(t, parsed.Confidence, out.Confidence)
	assert.Equal(t, parsed.FieldMetadata, out.Equipment.FieldMetadata)

	got, err := json.Marshal(out.Equipment.StructuredData())
	require.NoError(t, err)
	want, err := json.Marshal(parsed.StructuredData)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestNormalizeLabelScan_RoundTripHasNoSpuriousFields(t *testing.T) {
	t.Parallel()

	structured := `{"brand":"York","serialNumber":"W1D1234567","voltage":"460V","amperage":"12.5A","manufactureDate":"2019-04","refrigerantType":"R-410A","coilType":"microchannel"}`
	out := normalizeTest(t, `{"structuredData":`+structured+`,"confidence":0.88}`)

	got, err := json.Marshal(out.Equipment.StructuredData())
	require.NoError(t, err)
	assert.JSONEq(t, structured, string(got))

	// Synthesis only adds provenance, never data fields.
	assert.Len(t, out.Equipment.FieldMetadata, 7)
}

func TestNormalizeLabelScan_ProseThenObject(t *testing.T) {
	t.Parallel()

	out := normalizeTest(t, `I read the nameplate. {"structuredData":{"brand":"Bryant"},"confidence":0.66} Hope this helps.`)
	require.NotNil(t, out.Equipment.Brand)
	assert.Equal(t, "Bryant", *out.Equipment.Brand)
	assert.InDelta(t, 0.66, out.Confidence, 1e-9)
}

func TestNormalizeLabelScan_ParseErrors(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"not json at all", "", "```json\n```", "{broken"} {
		out, err := normalizeLabelScan(raw, testRequestedAt, testNow)
		assert.Nil(t, out, raw)
		require.Error(t, err, raw)
		assert.True(t, IsParseError(err), raw)
	}

	_, err := NormalizeLabelScan("not json at all", time.Now())
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Excerpt, "not json at all")
}

func TestNormalizeLabelScan_ZeroRequestedAt(t *testing.T) {
	t.Parallel()

	out, err := normalizeLabelScan(`{}`, time.Time{}, testNow)
	require.NoError(t, err)
	assert.Zero(t, out.ProcessingTimeMs)
}

func TestNormalizeLabelScan_ConcurrentCallsIndependent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{"structuredData":{"brand":"A"},"confidence":0.1}`,
		`{"structuredData":{"brand":"B"},"confidence":0.2}`,
		`{"structuredData":{"brand":"C"},"confidence":0.3}`,
	}

	var wg sync.WaitGroup
	results := make([]*model.LabelScanOutcome, len(inputs)*20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := NormalizeLabelScan(inputs[i%len(inputs)], time.Now())
			if err == nil {
				results[i] = out
			}
		}(i)
	}
	wg.Wait()

	for i, out := range results {
		require.NotNil(t, out)
		want := []string{"A", "B", "C"}[i%len(inputs)]
		assert.Equal(t, want, *out.Equipment.Brand)
		assert.InDelta(t, float64(i%len(inputs)+1)/10, out.Confidence, 1e-9)
	}
}
