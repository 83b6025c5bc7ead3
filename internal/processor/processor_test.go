package processor

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	extractionerrors "github.com/HenSanInDuty/ocr-cccd/internal/errors"
	"github.com/HenSanInDuty/ocr-cccd/internal/metrics"
)

const modernPayload = "096200014786|381902150|Trần Trọng Nhân|20122000|Nam|Cái Keo, Quách Phẩm, Cà Mau|18082025||||"

func newTestPipeline(t *testing.T, decoder QRDecoder, recognizer TextRecognizer, opts ...func(*PipelineConfig)) *Pipeline {
	t.Helper()
	cfg := &PipelineConfig{
		Decoder: decoder,
		Direct:  NewDirectRecognizer(recognizer, ""),
		Regions: NewRegionExtractor(recognizer, nil, t.TempDir()),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func decodeErr() error {
	return extractionerrors.NewDecodeError("QR payload contains encoding artifacts", nil)
}

func TestRunModernHappyPath(t *testing.T) {
	decoder := &fakeDecoder{steps: map[int]decodeStep{1: {payload: modernPayload, found: true}}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{})

	result := p.Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	require.Equal(t, card.KindQRSuccess, result.Kind)
	assert.Equal(t, card.ModernBack, result.Variant)
	assert.Equal(t, []int{1}, result.ScalesTried)
	assert.Equal(t, "096200014786", result.Record.IDNumber)
	assert.Equal(t, "20/12/2000", result.Record.DateOfBirth)
	assert.Equal(t, "18/08/2025", result.Record.IssueDate)
	assert.True(t, result.Succeeded())

	require.Len(t, result.Labeled, 7)
	assert.Equal(t, card.LabeledValue{Key: card.RecordIDNumber, Label: "Số CCCD/CMND", Value: "096200014786"}, result.Labeled[0])
	assert.Equal(t, card.LabeledValue{Key: card.RecordIssueDate, Label: "Ngày cấp", Value: "18/08/2025"}, result.Labeled[6])
}

func TestRunLabelsRecordWithConfiguredLocalization(t *testing.T) {
	loc := card.DefaultLocalization()
	loc.RecordLabels[card.RecordFullName] = "Full name"
	decoder := &fakeDecoder{steps: map[int]decodeStep{1: {payload: modernPayload, found: true}}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{}, func(cfg *PipelineConfig) { cfg.Localization = loc })

	result := p.Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	require.Equal(t, card.KindQRSuccess, result.Kind)
	require.Len(t, result.Labeled, 7)
	assert.Equal(t, "Full name", result.Labeled[2].Label)
	assert.Equal(t, "Trần Trọng Nhân", result.Labeled[2].Value)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"labeled":[{"key":"id_number","label":"Số CCCD/CMND","value":"096200014786"}`)
}

func TestRunScaleEscalationStopsAtFirstHit(t *testing.T) {
	decoder := &fakeDecoder{steps: map[int]decodeStep{3: {payload: modernPayload, found: true}}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{})

	result := p.Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	assert.Equal(t, card.KindQRSuccess, result.Kind)
	assert.Equal(t, []int{1, 2, 3}, decoder.scales)
	assert.Equal(t, []int{1, 2, 3}, result.ScalesTried)

	decoder = &fakeDecoder{steps: map[int]decodeStep{2: {payload: modernPayload, found: true}}}
	p = newTestPipeline(t, decoder, &fakeRecognizer{})
	result = p.Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})
	assert.Equal(t, []int{1, 2}, decoder.scales)
	assert.Equal(t, []int{1, 2}, result.ScalesTried)
}

func TestRunMalformedPayload(t *testing.T) {
	decoder := &fakeDecoder{steps: map[int]decodeStep{1: {payload: "A|B", found: true}}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{})

	result := p.Run(context.Background(), &Request{Front: testCard(), Variant: card.LegacyFront})

	require.Equal(t, card.KindQRParseError, result.Kind)
	assert.Equal(t, "A|B", result.ParseFailure.Payload)
	assert.Equal(t, "malformed QR format", result.ParseFailure.Cause)
	assert.False(t, result.Succeeded())
}

func TestRunDecodeErrorIsTerminal(t *testing.T) {
	decoder := &fakeDecoder{steps: map[int]decodeStep{
		1: {err: decodeErr()},
		2: {payload: modernPayload, found: true},
	}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{})

	result := p.Run(context.Background(), &Request{Front: testCard(), Back: testCard(), Variant: card.ModernBack})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorDecodeFailed, result.Failure.Code)
	assert.Equal(t, []int{1}, decoder.scales)
}

func TestRunRetryOnDecodeError(t *testing.T) {
	retry := func(c *PipelineConfig) { c.RetryOnDecodeError = true }

	decoder := &fakeDecoder{steps: map[int]decodeStep{
		1: {err: decodeErr()},
		2: {payload: modernPayload, found: true},
	}}
	result := newTestPipeline(t, decoder, &fakeRecognizer{}, retry).
		Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})
	assert.Equal(t, card.KindQRSuccess, result.Kind)
	assert.Equal(t, []int{1, 2}, result.ScalesTried)

	decoder = &fakeDecoder{steps: map[int]decodeStep{1: {err: decodeErr()}}}
	result = newTestPipeline(t, decoder, &fakeRecognizer{}, retry).
		Run(context.Background(), &Request{Front: testCard(), Back: testCard(), Variant: card.ModernBack})
	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorDecodeFailed, result.Failure.Code)
	assert.Equal(t, []int{1, 2, 3}, decoder.scales)
}

func TestRunNonDecodeErrorIsInfrastructure(t *testing.T) {
	decoder := &fakeDecoder{steps: map[int]decodeStep{1: {err: errors.New("failed to normalize image")}}}
	result := newTestPipeline(t, decoder, &fakeRecognizer{}).
		Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorInfrastructureFailed, result.Failure.Code)
	assert.Contains(t, result.Failure.Reason, "failed to normalize image")
}

func TestRunFallbackMissingFront(t *testing.T) {
	decoder := &fakeDecoder{}
	result := newTestPipeline(t, decoder, &fakeRecognizer{}).
		Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack, Mode: card.FallbackDirect})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorPreconditionFailed, result.Failure.Code)
	assert.Equal(t, "front image required", result.Failure.Reason)
	assert.Equal(t, []int{1, 2, 3}, result.ScalesTried)
}

func TestRunPreconditionsCheckedFirst(t *testing.T) {
	decoder := &fakeDecoder{}
	p := newTestPipeline(t, decoder, &fakeRecognizer{})

	result := p.Run(context.Background(), &Request{Back: testCard(), Variant: card.LegacyFront})
	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, "front image required", result.Failure.Reason)

	result = p.Run(context.Background(), &Request{Front: testCard(), Variant: card.ModernBack})
	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, "back image required", result.Failure.Reason)

	result = p.Run(context.Background(), &Request{Front: testCard(), Variant: "passport"})
	assert.Equal(t, extractionerrors.ErrorPreconditionFailed, result.Failure.Code)

	result = p.Run(context.Background(), nil)
	assert.Equal(t, card.KindFailure, result.Kind)

	assert.Empty(t, decoder.scales)
}

func TestRunDirectFallback(t *testing.T) {
	recognizer := &fakeRecognizer{responses: [][]TextFragment{frags("CĂN CƯỚC CÔNG DÂN", "096200014786")}}
	result := newTestPipeline(t, &fakeDecoder{}, recognizer).
		Run(context.Background(), &Request{Front: testCard(), Variant: card.LegacyFront, Mode: card.FallbackDirect})

	require.Equal(t, card.KindDirectText, result.Kind)
	assert.Equal(t, []string{"CĂN CƯỚC CÔNG DÂN", "096200014786"}, result.Texts)
}

func TestRunDirectFallbackEmpty(t *testing.T) {
	result := newTestPipeline(t, &fakeDecoder{}, &fakeRecognizer{}).
		Run(context.Background(), &Request{Front: testCard(), Variant: card.LegacyFront, Mode: card.FallbackDirect})

	require.Equal(t, card.KindDirectText, result.Kind)
	assert.NotNil(t, result.Texts)
	assert.Empty(t, result.Texts)
}

func TestRunRegionFallbackMissingFields(t *testing.T) {
	detector := &fakeDetector{detections: []Detection{
		{Box: box(60, 20, 110, 30), ClassIndex: className, Confidence: 0.9},
		{Box: box(60, 35, 90, 45), ClassIndex: classDOB, Confidence: 0.9},
	}}
	recognizer := &fakeRecognizer{responses: [][]TextFragment{frags("NGUYỄN VĂN A"), frags("01/01/1990")}}

	result := newTestPipeline(t, &fakeDecoder{}, recognizer).
		Run(context.Background(), &Request{Front: testCard(), Back: testCard(), Variant: card.ModernBack, Mode: card.FallbackRegion, Detector: detector})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorValidationFailed, result.Failure.Code)
	assert.Equal(t, []string{"Số CCCD", "Giới tính", "Nơi thường trú"}, result.Failure.MissingFields)
}

func TestRunRegionFallbackSuccess(t *testing.T) {
	detector := &fakeDetector{detections: []Detection{
		{Box: box(60, 5, 110, 15), ClassIndex: classID, Confidence: 0.9},
		{Box: box(60, 20, 110, 30), ClassIndex: className, Confidence: 0.9},
		{Box: box(60, 35, 90, 45), ClassIndex: classDOB, Confidence: 0.9},
		{Box: box(90, 35, 110, 45), ClassIndex: classGender, Confidence: 0.9},
		{Box: box(60, 50, 110, 75), ClassIndex: classCurrentPlace, Confidence: 0.9},
	}}
	recognizer := &fakeRecognizer{responses: [][]TextFragment{
		frags("001090000001"), frags("NGUYỄN VĂN A"), frags("01/01/1990"), frags("Nam"), frags("Hà Nội"),
	}}

	result := newTestPipeline(t, &fakeDecoder{}, recognizer).
		Run(context.Background(), &Request{Front: testCard(), Variant: card.LegacyFront, Detector: detector})

	require.Equal(t, card.KindRegion, result.Kind)
	assert.Equal(t, "001090000001", result.Fields["Số CCCD"])
	assert.Equal(t, "Hà Nội", result.Fields["Nơi thường trú"])
}

func TestRunRegionWithoutDetector(t *testing.T) {
	result := newTestPipeline(t, &fakeDecoder{}, &fakeRecognizer{}).
		Run(context.Background(), &Request{Front: testCard(), Variant: card.LegacyFront, Mode: card.FallbackRegion})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorPreconditionFailed, result.Failure.Code)
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	decoder := &fakeDecoder{steps: map[int]decodeStep{2: {payload: modernPayload, found: true}}}
	p := newTestPipeline(t, decoder, &fakeRecognizer{}, func(c *PipelineConfig) { c.Metrics = m })

	p.Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionOutcome.WithLabelValues("qr_success", "modern_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QRAttempts.WithLabelValues("1", "absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QRAttempts.WithLabelValues("2", "found")))
}

type panickingDecoder struct{}

func (panickingDecoder) Decode(context.Context, image.Image, int) (string, bool, error) {
	panic("boom")
}

func TestRunRecoversPanics(t *testing.T) {
	result := newTestPipeline(t, panickingDecoder{}, &fakeRecognizer{}).
		Run(context.Background(), &Request{Back: testCard(), Variant: card.ModernBack})

	require.Equal(t, card.KindFailure, result.Kind)
	assert.Equal(t, extractionerrors.ErrorInfrastructureFailed, result.Failure.Code)
	assert.Equal(t, card.ModernBack, result.Variant)
}

func TestNewPipelineValidates(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.Error(t, err)

	_, err = NewPipeline(&PipelineConfig{Direct: NewDirectRecognizer(&fakeRecognizer{}, "")})
	assert.Error(t, err)

	_, err = NewPipeline(&PipelineConfig{Decoder: &fakeDecoder{}})
	assert.Error(t, err)

	_, err = NewPipeline(&PipelineConfig{Decoder: &fakeDecoder{}, Direct: NewDirectRecognizer(&fakeRecognizer{}, ""), Scales: []int{1, 0}})
	assert.Error(t, err)
}
