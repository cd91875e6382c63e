package naming

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/engine/identifier"
	"sqpr-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingIDs struct{}

func (failingIDs) NewShortID() (string, error) { return "", errors.New("entropy exhausted") }

func TestNameFor_KOB1Pattern(t *testing.T) {
	n := New(nil)
	name, err := n.NameFor("KOB1", models.DateRange{StartDate: "2025-01-01"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}-KOB1@startDate=01\.01\.2025\.sqpr$`), name)
	assert.Regexp(t, FilePattern, name)
}

func TestNameFor_DateKinds(t *testing.T) {
	dr := models.DateRange{StartDate: "2025-03-15", EndDate: "2025-03-31", PeriodType: models.PeriodDay}
	n := New(identifier.NewWithSource(bytes.NewReader(bytes.Repeat([]byte{0xAB}, 64))))

	tests := []struct {
		code string
		want string
	}{
		{"KSB1", "ABABABAB-KSB1@startDate=15.03.2025.sqpr"},
		{"ZFIR_STATSLOAD", "ABABABAB-ZFIR_STATSLOAD@startDate=202503.sqpr"},
		{"CJI3#ALLCOST", "ABABABAB-CJI3#ALLCOST@startDate=15.03.2025.sqpr"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			name, err := n.NameFor(tt.code, dr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
			assert.NotContains(t, name, "-dwld")
		})
	}
}

func TestNameFor_Errors(t *testing.T) {
	n := New(nil)

	_, err := n.NameFor("KSB1", models.DateRange{StartDate: "not-a-date"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidDate))

	_, err = n.NameFor("KSB 1", models.DateRange{StartDate: "2025-01-01"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCode))

	_, err = n.NameFor("", models.DateRange{StartDate: "2025-01-01"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCode))

	_, err = New(failingIDs{}).NameFor("KSB1", models.DateRange{StartDate: "2025-01-01"})
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestNameForForm_UsesProfile(t *testing.T) {
	n := New(nil)
	name, err := n.NameForForm(models.Form{TCode: "CJI3", CustomName: "CJI3 1CANDALL"}, models.DateRange{StartDate: "2024-12-01"})
	require.NoError(t, err)

	parsed, err := ParseFileName(name)
	require.NoError(t, err)
	assert.Equal(t, "CJI3#1CANDALL", parsed.Code)
	assert.Equal(t, "01.12.2024", parsed.StartDate)
	assert.Len(t, parsed.ID, 8)
	assert.Equal(t, name, parsed.String())
}

func TestNameForForm_VariantFromCustomNameOnly(t *testing.T) {
	n := New(nil)
	name, err := n.NameForForm(models.Form{TCode: "CJI3", CustomName: "1CANDALL"}, models.DateRange{StartDate: "2024-12-01"})
	require.NoError(t, err)

	parsed, err := ParseFileName(name)
	require.NoError(t, err)
	assert.Equal(t, "CJI3#1CANDALL", parsed.Code)
}

func TestParseFileName_Rejects(t *testing.T) {
	for _, name := range []string{
		"abcdef12-KSB1@startDate=01.01.2025.sqpr",
		"ABCDEF12-KSB1@startDate=01.01.2025.sqpr-dwld",
		"ABCDEF12-KSB1@startDate=01.01.2025.json",
		"ABCDEF12-@startDate=01.01.2025.sqpr",
	} {
		_, err := ParseFileName(name)
		assert.Error(t, err, name)
	}
}
