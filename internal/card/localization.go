package card

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAbsentValue is the display sentinel for a value the card does not carry.
const DefaultAbsentValue = "Không có"

const defaultRecaptureGuidance = "📸 Vui lòng chụp lại theo hướng dẫn:\n" +
	"  • Chụp trực diện CCCD, không bị nghiêng\n" +
	"  • CCCD nằm đầy đủ trong khung ảnh\n" +
	"  • Không chụp quá nhỏ hoặc quá xa\n" +
	"  • Đảm bảo ánh sáng đủ, không quá chói hoặc quá tối\n" +
	"  • Ảnh rõ nét, không bị mờ\n" +
	"  • Tránh phản chiếu ánh sáng lên bề mặt thẻ"

// Localization is the display table: field labels, record labels, the
// required/optional field policy, the absent sentinel and re-capture guidance.
type Localization struct {
	AbsentValue       string              `yaml:"absent_value"`
	RecaptureGuidance string              `yaml:"recapture_guidance"`
	NothingDetected   string              `yaml:"nothing_detected"`
	FieldLabels       map[FieldTag]string `yaml:"field_labels"`
	RecordLabels      map[string]string   `yaml:"record_labels"`
	Required          []FieldTag          `yaml:"required"`
	Optional          []FieldTag          `yaml:"optional"`
}

// DefaultLocalization returns the Vietnamese table used by the card scanner.
func DefaultLocalization() *Localization {
	return &Localization{
		AbsentValue:       DefaultAbsentValue,
		RecaptureGuidance: defaultRecaptureGuidance,
		NothingDetected:   "Không detect được thông tin nào trên ảnh. Vui lòng chụp lại theo hướng dẫn.",
		FieldLabels: map[FieldTag]string{
			FieldID:           "Số CCCD",
			FieldName:         "Họ và tên",
			FieldDOB:          "Ngày sinh",
			FieldGender:       "Giới tính",
			FieldNationality:  "Quốc tịch",
			FieldOriginPlace:  "Quê quán",
			FieldCurrentPlace: "Nơi thường trú",
			FieldIssueDate:    "Ngày cấp",
			FieldExpireDate:   "Ngày hết hạn",
			FieldFeatures:     "Đặc điểm nhận dạng",
			FieldFingerPrint:  "Vân tay",
			FieldQR:           "Mã QR",
		},
		RecordLabels: map[string]string{
			RecordIDNumber:         "Số CCCD/CMND",
			RecordLegacyIDNumber:   "Số CMND cũ",
			RecordFullName:         "Họ và tên",
			RecordDateOfBirth:      "Ngày sinh",
			RecordGender:           "Giới tính",
			RecordResidenceAddress: "Nơi thường trú",
			RecordIssueDate:        "Ngày cấp",
		},
		Required: []FieldTag{FieldID, FieldName, FieldDOB, FieldGender, FieldCurrentPlace},
		Optional: []FieldTag{FieldFeatures, FieldFingerPrint, FieldExpireDate, FieldNationality, FieldOriginPlace, FieldIssueDate, FieldQR},
	}
}

// LoadLocalization reads a YAML override on top of the default table. Keys
// missing from the file keep their default values.
func LoadLocalization(path string) (*Localization, error) {
	loc := DefaultLocalization()
	if path == "" {
		return loc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization file: %w", err)
	}

	var override Localization
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse localization file: %w", err)
	}

	if override.AbsentValue != "" {
		loc.AbsentValue = override.AbsentValue
	}
	if override.RecaptureGuidance != "" {
		loc.RecaptureGuidance = override.RecaptureGuidance
	}
	if override.NothingDetected != "" {
		loc.NothingDetected = override.NothingDetected
	}
	for tag, label := range override.FieldLabels {
		loc.FieldLabels[tag] = label
	}
	for key, label := range override.RecordLabels {
		loc.RecordLabels[key] = label
	}
	if len(override.Required) > 0 {
		loc.Required = override.Required
		loc.Optional = complement(override.Required)
	}
	if len(override.Optional) > 0 {
		loc.Optional = override.Optional
	}

	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid localization file %s: %w", path, err)
	}
	return loc, nil
}

// Validate checks the required-field policy: required must be a subset of
// the tag set and disjoint from optional.
func (l *Localization) Validate() error {
	if l.AbsentValue == "" {
		return fmt.Errorf("absent_value must not be empty")
	}

	required := make(map[FieldTag]bool, len(l.Required))
	for _, tag := range l.Required {
		if !IsKnownFieldTag(tag) {
			return fmt.Errorf("required field %q is not a known field tag", tag)
		}
		required[tag] = true
	}
	for _, tag := range l.Optional {
		if !IsKnownFieldTag(tag) {
			return fmt.Errorf("optional field %q is not a known field tag", tag)
		}
		if required[tag] {
			return fmt.Errorf("field %q is both required and optional", tag)
		}
	}
	return nil
}

// Label returns the display label for tag, falling back to the tag itself.
func (l *Localization) Label(tag FieldTag) string {
	if label, ok := l.FieldLabels[tag]; ok && label != "" {
		return label
	}
	return string(tag)
}

// RecordLabel returns the display label for an IdentityRecord key.
func (l *Localization) RecordLabel(key string) string {
	if label, ok := l.RecordLabels[key]; ok && label != "" {
		return label
	}
	return key
}

// MissingRequired lists the required tags absent from fields, in policy order.
func (l *Localization) MissingRequired(fields FieldMap) []FieldTag {
	var missing []FieldTag
	for _, tag := range l.Required {
		if fields[tag] == "" {
			missing = append(missing, tag)
		}
	}
	return missing
}

// Labeled translates tag keys into display labels.
func (l *Localization) Labeled(fields FieldMap) map[string]string {
	out := make(map[string]string, len(fields))
	for tag, text := range fields {
		out[l.Label(tag)] = text
	}
	return out
}

func complement(required []FieldTag) []FieldTag {
	in := make(map[FieldTag]bool, len(required))
	for _, tag := range required {
		in[tag] = true
	}
	var rest []FieldTag
	for _, tag := range classOrder {
		if !in[tag] {
			rest = append(rest, tag)
		}
	}
	return rest
}
