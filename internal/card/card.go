/**
 * CCCD Domain Model
 *
 * Card variants, field tags, identity records and the extraction result
 * union shared by every stage of the pipeline.
 */

package card

import (
	"fmt"
	"strings"
)

// CardVariant selects which physical side carries the QR symbol.
type CardVariant string

const (
	// LegacyFront cards ("CCCD Cũ") print the QR code on the front face.
	LegacyFront CardVariant = "legacy_front"
	// ModernBack cards ("CCCD Mới") print the QR code on the back face.
	ModernBack CardVariant = "modern_back"
)

// ParseCardVariant accepts the canonical names plus the short aliases used by
// the CLI and HTTP surfaces.
func ParseCardVariant(s string) (CardVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(LegacyFront), "legacy", "old", "front":
		return LegacyFront, nil
	case string(ModernBack), "modern", "new", "back":
		return ModernBack, nil
	default:
		return "", fmt.Errorf("unknown card variant %q", s)
	}
}

// CanonicalVariant returns the canonical variant for s, or s unchanged when it
// names no known variant.
func CanonicalVariant(s string) CardVariant {
	if v, err := ParseCardVariant(s); err == nil {
		return v
	}
	return CardVariant(s)
}

// FallbackMode selects the recognition method used once QR decoding is exhausted.
type FallbackMode string

const (
	// FallbackDirect runs OCR over the whole preprocessed image.
	FallbackDirect FallbackMode = "direct"
	// FallbackRegion runs OCR over each detected field region.
	FallbackRegion FallbackMode = "region"
)

// ParseFallbackMode accepts the mode names plus the "ocr" and "detection" aliases.
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(FallbackDirect), "ocr":
		return FallbackDirect, nil
	case string(FallbackRegion), "detection":
		return FallbackRegion, nil
	default:
		return "", fmt.Errorf("unknown fallback mode %q", s)
	}
}

// FieldTag names one semantic region on the card.
type FieldTag string

const (
	FieldCurrentPlace FieldTag = "current_place"
	FieldDOB          FieldTag = "dob"
	FieldExpireDate   FieldTag = "expire_date"
	FieldFeatures     FieldTag = "features"
	FieldFingerPrint  FieldTag = "finger_print"
	FieldGender       FieldTag = "gender"
	FieldID           FieldTag = "id"
	FieldIssueDate    FieldTag = "issue_date"
	FieldName         FieldTag = "name"
	FieldNationality  FieldTag = "nationality"
	FieldOriginPlace  FieldTag = "origin_place"
	FieldQR           FieldTag = "qr"
)

// classOrder is the detector's class index table. The region detection model
// was trained with these names in this exact order.
var classOrder = []FieldTag{
	FieldCurrentPlace,
	FieldDOB,
	FieldExpireDate,
	FieldFeatures,
	FieldFingerPrint,
	FieldGender,
	FieldID,
	FieldIssueDate,
	FieldName,
	FieldNationality,
	FieldOriginPlace,
	FieldQR,
}

// AllFieldTags returns the detector class table in index order.
func AllFieldTags() []FieldTag {
	return append([]FieldTag(nil), classOrder...)
}

// FieldTagForClass maps a detector class index to its field tag.
func FieldTagForClass(index int) (FieldTag, error) {
	if index < 0 || index >= len(classOrder) {
		return "", fmt.Errorf("class index %d outside field tag table (size %d)", index, len(classOrder))
	}
	return classOrder[index], nil
}

// IsKnownFieldTag reports whether tag belongs to the closed tag set.
func IsKnownFieldTag(tag FieldTag) bool {
	for _, t := range classOrder {
		if t == tag {
			return true
		}
	}
	return false
}

// FieldMap maps a field tag to the text recognized in its region.
type FieldMap map[FieldTag]string
