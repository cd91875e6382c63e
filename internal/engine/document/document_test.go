package document

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTemplate() models.Template {
	return models.Template{
		ID:   "t1",
		Name: "Close",
		Forms: []models.TemplateForm{
			{
				ID: "f1", TCode: "KSB1", CustomName: "Cost centers",
				Parameters:    []string{"Layout", "CostCenter", "Columns"},
				DefaultValues: map[string]models.Value{"Layout": models.StringValue("/ALLDETAIL"), "Columns": models.AllValue()},
			},
			{
				ID: "f2", TCode: "ZFIR_STATSLOAD",
				Parameters:    []string{"NoSum"},
				DefaultValues: map[string]models.Value{"NoSum": models.BoolValue(true)},
			},
		},
	}
}

func TestEncodeTemplate(t *testing.T) {
	data, err := EncodeTemplate(createTemplate())
	require.NoError(t, err)

	var doc map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Contains(t, doc, "Cost centers")
	require.Contains(t, doc, "ZFIR_STATSLOAD")
	assert.Equal(t, map[string]interface{}{
		"tcode":      "KSB1",
		"Layout":     "/ALLDETAIL",
		"CostCenter": "",
		"Columns":    []interface{}{"All"},
	}, doc["Cost centers"])
	assert.Equal(t, true, doc["ZFIR_STATSLOAD"]["NoSum"])
}

func TestEncodeTemplate_DuplicateNames(t *testing.T) {
	tmpl := createTemplate()
	tmpl.Forms[1].CustomName = "Cost centers"

	_, err := EncodeTemplate(tmpl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDocumentInvalid))
}

func TestEncodePackage_KeepsEmptyParameters(t *testing.T) {
	pkg := models.Package{Forms: []models.Form{{
		ID: "f1", TCode: "KOB1", CustomName: "Orders",
		Parameters: map[string]models.Value{"Layout": models.StringValue("/ALL_COST"), "Order": {}},
	}}}

	data, err := EncodePackage(pkg)
	require.NoError(t, err)

	var doc map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "", doc["Orders"]["Order"])
	assert.Equal(t, "KOB1", doc["Orders"]["tcode"])
}

func TestEncodeForm_RoundTrip(t *testing.T) {
	form := models.Form{
		ID: "f1", TCode: "KSB1",
		JSONData:   models.FlowDefinition{"$meta": map[string]interface{}{"tcode": "KSB1"}},
		Parameters: map[string]models.Value{"PostingDateLow": models.StringValue("01.01.2025"), "NoSum": models.AllValue()},
	}

	data, err := EncodeForm(form)
	require.NoError(t, err)

	doc, err := DecodeForm(data)
	require.NoError(t, err)
	assert.Equal(t, "KSB1", doc.Name)
	assert.Equal(t, "KSB1", doc.TCode)
	assert.Equal(t, "01.01.2025", doc.Parameters["PostingDateLow"])
	assert.Equal(t, []interface{}{"All"}, doc.Parameters["NoSum"])
	assert.NotContains(t, doc.Parameters, "tcode")
	assert.Contains(t, doc.Flow, "$meta")
}

func TestDecodeForm_Invalid(t *testing.T) {
	_, err := DecodeForm([]byte(`{"name":"x"}`))
	assert.True(t, errors.Is(err, apperrors.ErrDocumentInvalid))

	_, err = DecodeForm([]byte(`not json`))
	assert.True(t, errors.Is(err, apperrors.ErrDocumentInvalid))
}

func TestDecodeTemplate(t *testing.T) {
	data := []byte(`{
		"Zeta": {"tcode": "KOB1", "Layout": "", "Order": "4711"},
		"Alpha": {"tcode": "ZFIR_STATSLOAD", "Columns": true, "NoSum": ["All"], "Count": 3}
	}`)

	tmpl, err := DecodeTemplate("Imported", data)
	require.NoError(t, err)

	assert.Equal(t, "Imported", tmpl.Name)
	assert.NotEmpty(t, tmpl.ID)
	require.Len(t, tmpl.Forms, 2)

	zeta := tmpl.Forms[0]
	assert.Equal(t, "Zeta", zeta.CustomName)
	assert.Equal(t, "KOB1", zeta.TCode)
	assert.Equal(t, []string{"Layout", "Order"}, zeta.Parameters)
	assert.Equal(t, map[string]models.Value{"Order": models.StringValue("4711")}, zeta.DefaultValues)
	tcode, ok := models.MetaTCode(zeta.JSONData)
	assert.True(t, ok)
	assert.Equal(t, "KOB1", tcode)

	alpha := tmpl.Forms[1]
	assert.Equal(t, []string{"Columns", "Count", "NoSum"}, alpha.Parameters)
	assert.Equal(t, models.BoolValue(true), alpha.DefaultValues["Columns"])
	assert.Equal(t, models.AllValue(), alpha.DefaultValues["NoSum"])
	assert.NotEqual(t, zeta.ID, alpha.ID)
}

func TestDecodeTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not an object", `["KSB1"]`},
		{"form not an object", `{"KSB1": "KSB1"}`},
		{"missing tcode", `{"KSB1": {"Layout": ""}}`},
		{"empty tcode", `{"KSB1": {"tcode": ""}}`},
		{"nested object value", `{"KSB1": {"tcode": "KSB1", "Layout": {"a": 1}}}`},
		{"non-string list", `{"KSB1": {"tcode": "KSB1", "Columns": [1, 2]}}`},
		{"malformed", `{"KSB1": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTemplate("x", []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrDocumentInvalid), "got %v", err)
		})
	}
}

func TestEncodeDecode_PreservesParameters(t *testing.T) {
	data, err := EncodeTemplate(createTemplate())
	require.NoError(t, err)

	tmpl, err := DecodeTemplate("Close", data)
	require.NoError(t, err)

	byName := map[string]models.TemplateForm{}
	for _, f := range tmpl.Forms {
		byName[f.CustomName] = f
	}
	assert.ElementsMatch(t, []string{"Layout", "CostCenter", "Columns"}, byName["Cost centers"].Parameters)
	assert.Len(t, byName["Cost centers"].DefaultValues, 2)
	assert.Equal(t, models.BoolValue(true), byName["ZFIR_STATSLOAD"].DefaultValues["NoSum"])
}

func TestEncodeDecode_PreservesFormOrder(t *testing.T) {
	tmpl := models.Template{
		Name: "Close",
		Forms: []models.TemplateForm{
			{ID: "f1", TCode: "ZFIR_STATSLOAD", Parameters: []string{"NoSum"}},
			{ID: "f2", TCode: "KSB1", Parameters: []string{"Layout"}},
			{ID: "f3", TCode: "CJI3", CustomName: "Alpha projects", Parameters: []string{"Layout"}},
		},
	}

	data, err := EncodeTemplate(tmpl)
	require.NoError(t, err)

	keys, err := topLevelKeys(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"ZFIR_STATSLOAD", "KSB1", "Alpha projects"}, keys)

	decoded, err := DecodeTemplate("Close", data)
	require.NoError(t, err)
	require.Len(t, decoded.Forms, 3)
	assert.Equal(t, "ZFIR_STATSLOAD", decoded.Forms[0].TCode)
	assert.Equal(t, "KSB1", decoded.Forms[1].TCode)
	assert.Equal(t, "CJI3", decoded.Forms[2].TCode)
}

func TestEncodePackage_PreservesFormOrder(t *testing.T) {
	pkg := models.Package{
		Forms: []models.Form{
			{ID: "f1", TCode: "KSB1", CustomName: "Zulu"},
			{ID: "f2", TCode: "KOB1", CustomName: "Alpha"},
		},
	}

	data, err := EncodePackage(pkg)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	keys, err := topLevelKeys(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zulu", "Alpha"}, keys)
}

func TestEncodeTemplate_Empty(t *testing.T) {
	data, err := EncodeTemplate(models.Template{Name: "Empty"})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
