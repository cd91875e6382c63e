package validatetemplate

import (
	"context"
	"errors"
	"testing"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
	"sqpr-engine/internal/engine/validator"
	"sqpr-engine/internal/gateway"
	"sqpr-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T, gw gateway.Gateway) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(LoadConfig(), validator.New(log), gw, nil, log)
}

func createTestForm(id, tcode string) models.TemplateForm {
	return models.TemplateForm{
		ID:         id,
		TCode:      tcode,
		CustomName: tcode,
		JSONData: models.FlowDefinition{
			"$meta":         map[string]interface{}{"tcode": tcode},
			"targetContext": map[string]interface{}{},
			"steps":         []interface{}{},
		},
		Parameters:    []string{"startDate"},
		DefaultValues: map[string]models.Value{"startDate": models.StringValue("")},
	}
}

func createTestTemplate() models.Template {
	return models.Template{
		ID:    "tmpl-1",
		Name:  "Month close",
		Type:  models.TemplateCustom,
		Forms: []models.TemplateForm{createTestForm("f1", "KSB1"), createTestForm("f2", "KOB1")},
	}
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_NoPrevious(t *testing.T) {
	h := createTestHandler(t, gateway.NewMemoryGateway())

	out, err := h.Execute(context.Background(), &Input{Template: createTestTemplate()})

	require.NoError(t, err)
	assert.True(t, out.Validation.IsValid)
	assert.False(t, out.PreviousFound)
	assert.Nil(t, out.Diff)
	assert.Empty(t, out.StoredAs)
}

func TestHandler_Execute_StoreThenDiff(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	h := createTestHandler(t, gw)
	ctx := context.Background()

	out, err := h.Execute(ctx, &Input{Template: createTestTemplate(), Store: true})
	require.NoError(t, err)
	assert.Equal(t, "Month close.json", out.StoredAs)

	// Unchanged template diffs clean even though stored forms get new IDs.
	out, err = h.Execute(ctx, &Input{Template: createTestTemplate()})
	require.NoError(t, err)
	require.True(t, out.PreviousFound)
	require.NotNil(t, out.Diff)
	assert.True(t, out.Diff.Empty())

	changed := createTestTemplate()
	changed.Forms[1].DefaultValues["startDate"] = models.StringValue("2025-01-01")
	changed.Forms = append(changed.Forms, createTestForm("f3", "KSB2"))

	out, err = h.Execute(ctx, &Input{Template: changed})
	require.NoError(t, err)
	require.NotNil(t, out.Diff)
	assert.Equal(t, []string{"f2"}, out.Diff.ModifiedForms)
	assert.Equal(t, []string{"f3"}, out.Diff.AddedForms)
	assert.Empty(t, out.Diff.RemovedForms)
}

func TestHandler_Execute_RemovedFormUsesName(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	h := createTestHandler(t, gw)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Input{Template: createTestTemplate(), Store: true})
	require.NoError(t, err)

	shorter := createTestTemplate()
	shorter.Forms = shorter.Forms[:1]

	out, err := h.Execute(ctx, &Input{Template: shorter})
	require.NoError(t, err)
	require.NotNil(t, out.Diff)
	assert.Equal(t, []string{"KOB1"}, out.Diff.RemovedForms)
}

func TestHandler_Execute_PreviousTemplateName(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	h := createTestHandler(t, gw)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Input{Template: createTestTemplate(), Store: true})
	require.NoError(t, err)

	renamed := createTestTemplate()
	renamed.Name = "Quarter close"

	out, err := h.Execute(ctx, &Input{Template: renamed, PreviousTemplateName: "Month close.json"})
	require.NoError(t, err)
	require.True(t, out.PreviousFound)
	assert.Contains(t, out.Diff.Differences, "name: Month close → Quarter close")
}

func TestHandler_Execute_Revert(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	h := createTestHandler(t, gw)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Input{Template: createTestTemplate(), Revert: true})
	require.Error(t, err)
	requireCode(t, err, apperrors.ErrCodeTemplateNotFound)

	_, err = h.Execute(ctx, &Input{Template: createTestTemplate(), Store: true})
	require.NoError(t, err)

	changed := createTestTemplate()
	changed.Forms = changed.Forms[:1]
	out, err := h.Execute(ctx, &Input{Template: changed, Store: true})
	require.NoError(t, err)
	assert.Equal(t, "Month close.json", out.StoredAs)
	assert.Equal(t, 1, out.VersionsKept)

	// Storing the same content again is not a new version.
	out, err = h.Execute(ctx, &Input{Template: changed, Store: true})
	require.NoError(t, err)
	assert.Empty(t, out.StoredAs)
	assert.Equal(t, 1, out.VersionsKept)

	out, err = h.Execute(ctx, &Input{Template: models.Template{Name: "Month close"}, Revert: true})
	require.NoError(t, err)
	assert.True(t, out.Reverted)
	assert.Equal(t, 0, out.VersionsKept)

	// The stored document now matches the original two-form template.
	out, err = h.Execute(ctx, &Input{Template: createTestTemplate()})
	require.NoError(t, err)
	require.NotNil(t, out.Diff)
	assert.True(t, out.Diff.Empty())
}

func TestHandler_Execute_InvalidTemplate(t *testing.T) {
	h := createTestHandler(t, gateway.NewMemoryGateway())

	invalid := createTestTemplate()
	invalid.Name = ""

	t.Run("reported without store", func(t *testing.T) {
		out, err := h.Execute(context.Background(), &Input{Template: invalid})
		require.NoError(t, err)
		assert.True(t, out.Validation.HasErrors())
		assert.Nil(t, out.Diff)
	})

	t.Run("fails with store", func(t *testing.T) {
		_, err := h.Execute(context.Background(), &Input{Template: invalid, Store: true})
		require.Error(t, err)
		requireCode(t, err, apperrors.ErrCodeValidationFailed)
	})
}

func TestHandler_Execute_CorruptPrevious(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	_, err := gw.WriteFile(context.Background(), "/templates", "Month close.json", "not json", true)
	require.NoError(t, err)

	h := createTestHandler(t, gw)
	_, err = h.Execute(context.Background(), &Input{Template: createTestTemplate()})

	require.Error(t, err)
	requireCode(t, err, apperrors.ErrCodeDocumentInvalid)
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{
			name:      "valid",
			variables: `{"template":{"id":"t","name":"Month close","forms":[]},"store":true}`,
		},
		{name: "missing template", variables: `{"store":true}`, wantErr: true},
		{name: "malformed", variables: `{"template":`, wantErr: true},
		{
			name:      "store not boolean",
			variables: `{"template":{"name":"x","forms":[]},"store":"yes"}`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := parseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				requireCode(t, err, apperrors.ErrCodeParseError)
				return
			}
			require.NoError(t, err)
			assert.True(t, input.Store)
			assert.Equal(t, "Month close", input.Template.Name)
		})
	}
}
