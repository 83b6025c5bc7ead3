package card

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
)

func TestFieldTagForClass(t *testing.T) {
	tag, err := FieldTagForClass(0)
	require.NoError(t, err)
	assert.Equal(t, FieldCurrentPlace, tag)

	tag, err = FieldTagForClass(6)
	require.NoError(t, err)
	assert.Equal(t, FieldID, tag)

	tag, err = FieldTagForClass(11)
	require.NoError(t, err)
	assert.Equal(t, FieldQR, tag)

	_, err = FieldTagForClass(12)
	assert.Error(t, err)
	_, err = FieldTagForClass(-1)
	assert.Error(t, err)
}

func TestDefaultLocalizationPolicy(t *testing.T) {
	loc := DefaultLocalization()
	require.NoError(t, loc.Validate())

	assert.Len(t, AllFieldTags(), 12)
	assert.Len(t, loc.Required, 5)
	assert.Len(t, loc.Optional, 7)
	for _, tag := range AllFieldTags() {
		assert.NotEqual(t, string(tag), loc.Label(tag), "tag %s has no display label", tag)
	}
}

func TestMissingRequired(t *testing.T) {
	loc := DefaultLocalization()

	missing := loc.MissingRequired(FieldMap{FieldName: "Trần Trọng Nhân", FieldDOB: "20/12/2000"})
	assert.Equal(t, []FieldTag{FieldID, FieldGender, FieldCurrentPlace}, missing)

	complete := FieldMap{
		FieldID:           "096200014786",
		FieldName:         "Trần Trọng Nhân",
		FieldDOB:          "20/12/2000",
		FieldGender:       "Nam",
		FieldCurrentPlace: "Cà Mau",
	}
	assert.Empty(t, loc.MissingRequired(complete))
}

func TestValidateRejectsOverlappingPolicy(t *testing.T) {
	loc := DefaultLocalization()
	loc.Optional = append(loc.Optional, FieldID)
	assert.Error(t, loc.Validate())

	loc = DefaultLocalization()
	loc.Required = append(loc.Required, FieldTag("signature"))
	assert.Error(t, loc.Validate())
}

func TestLoadLocalizationOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	content := `absent_value: "N/A"
field_labels:
  id: "ID number"
required: [id, name]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loc, err := LoadLocalization(path)
	require.NoError(t, err)

	assert.Equal(t, "N/A", loc.AbsentValue)
	assert.Equal(t, "ID number", loc.Label(FieldID))
	assert.Equal(t, "Họ và tên", loc.Label(FieldName))
	assert.Equal(t, []FieldTag{FieldID, FieldName}, loc.Required)
	assert.Len(t, loc.Optional, 10)
	assert.NotContains(t, loc.Optional, FieldID)
}

func TestLoadLocalizationEmptyPathUsesDefaults(t *testing.T) {
	loc, err := LoadLocalization("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAbsentValue, loc.AbsentValue)
}

func TestParseCardVariant(t *testing.T) {
	v, err := ParseCardVariant("modern")
	require.NoError(t, err)
	assert.Equal(t, ModernBack, v)

	v, err = ParseCardVariant("LEGACY_FRONT")
	require.NoError(t, err)
	assert.Equal(t, LegacyFront, v)

	_, err = ParseCardVariant("passport")
	assert.Error(t, err)
}

func TestCanonicalVariant(t *testing.T) {
	assert.Equal(t, LegacyFront, CanonicalVariant("legacy"))
	assert.Equal(t, ModernBack, CanonicalVariant(" New "))
	assert.Equal(t, CardVariant("passport"), CanonicalVariant("passport"))
}

func TestFailureResultClassification(t *testing.T) {
	validation := extractionerrors.NewValidationError([]string{"Số CCCD"}, "guidance")
	res := FailureResult(fmt.Errorf("region extraction: %w", validation))

	require.Equal(t, KindFailure, res.Kind)
	require.NotNil(t, res.Failure)
	assert.Equal(t, extractionerrors.ErrorValidationFailed, res.Failure.Code)
	assert.Equal(t, []string{"Số CCCD"}, res.Failure.MissingFields)
	assert.False(t, res.Succeeded())

	res = FailureResult(fmt.Errorf("boom"))
	assert.Equal(t, extractionerrors.ErrorInfrastructureFailed, res.Failure.Code)
	assert.Equal(t, "boom", res.Failure.Reason)
}

func TestRecordLabeledOrder(t *testing.T) {
	rec := &IdentityRecord{IDNumber: "1", LegacyIDNumber: "2", FullName: "3", DateOfBirth: "4", Gender: "5", ResidenceAddress: "6", IssueDate: "7"}
	rows := rec.Labeled(nil)
	require.Len(t, rows, 7)
	assert.Equal(t, "Số CCCD/CMND", rows[0].Label)
	assert.Equal(t, "1", rows[0].Value)
	assert.Equal(t, "Ngày cấp", rows[6].Label)
	assert.Equal(t, "7", rows[6].Value)
}
