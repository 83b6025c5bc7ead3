package card

import (
	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
)

// ResultKind tags the ExtractionResult variant.
type ResultKind string

const (
	KindQRSuccess    ResultKind = "qr_success"
	KindQRParseError ResultKind = "qr_parse_error"
	KindDirectText   ResultKind = "direct_text"
	KindRegion       ResultKind = "region"
	KindFailure      ResultKind = "failure"
)

// Failure describes a classified extraction failure.
type Failure struct {
	Code          extractionerrors.ErrorCode `json:"code"`
	Reason        string                     `json:"reason"`
	MissingFields []string                   `json:"missingFields,omitempty"`
}

// ExtractionResult is the single output of the extraction pipeline. Exactly
// the payload field matching Kind is set.
type ExtractionResult struct {
	Kind         ResultKind        `json:"kind"`
	Variant      CardVariant       `json:"variant"`
	ScalesTried  []int             `json:"scalesTried,omitempty"`
	Record       *IdentityRecord   `json:"record,omitempty"`
	Labeled      []LabeledValue    `json:"labeled,omitempty"` // Record in payload order with display labels
	ParseFailure *ParseFailure     `json:"parseFailure,omitempty"`
	Texts        []string          `json:"texts,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Failure      *Failure          `json:"failure,omitempty"`
}

// QRSuccess wraps a record parsed from the QR payload.
func QRSuccess(record *IdentityRecord) ExtractionResult {
	return ExtractionResult{Kind: KindQRSuccess, Record: record}
}

// QRParseError reports a QR symbol that decoded but did not parse.
func QRParseError(failure *ParseFailure) ExtractionResult {
	return ExtractionResult{Kind: KindQRParseError, ParseFailure: failure}
}

// DirectTextResult carries full-image OCR lines. A nil slice becomes empty.
func DirectTextResult(texts []string) ExtractionResult {
	if texts == nil {
		texts = []string{}
	}
	return ExtractionResult{Kind: KindDirectText, Texts: texts}
}

// RegionResult carries the field map keyed by display label.
func RegionResult(labeled map[string]string) ExtractionResult {
	return ExtractionResult{Kind: KindRegion, Fields: labeled}
}

// FailureResult classifies err. Errors outside the extraction taxonomy are
// reported as infrastructure failures.
func FailureResult(err error) ExtractionResult {
	failure := &Failure{
		Code:   extractionerrors.ErrorInfrastructureFailed,
		Reason: err.Error(),
	}
	if extractionErr, ok := extractionerrors.As(err); ok {
		failure.Code = extractionErr.Code
		failure.Reason = extractionErr.Message
		if extractionErr.Cause != nil && extractionErr.Code == extractionerrors.ErrorInfrastructureFailed {
			failure.Reason = extractionErr.Error()
		}
		failure.MissingFields = extractionErr.MissingFields
	}
	return ExtractionResult{Kind: KindFailure, Failure: failure}
}

// Succeeded reports whether the result carries extracted data.
func (r ExtractionResult) Succeeded() bool {
	return r.Kind != KindFailure && r.Kind != KindQRParseError
}
