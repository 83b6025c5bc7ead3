package qrpayload

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
)

const modernPayload = "096200014786|381902150|Trần Trọng Nhân|20122000|Nam|Cái Keo, Quách Phẩm, Cà Mau|18082025||||"

func TestParseModernCard(t *testing.T) {
	rec, failure := Parse(modernPayload)
	require.Nil(t, failure)
	require.NotNil(t, rec)

	assert.Equal(t, "096200014786", rec.IDNumber)
	assert.Equal(t, "381902150", rec.LegacyIDNumber)
	assert.Equal(t, "Trần Trọng Nhân", rec.FullName)
	assert.Equal(t, "20/12/2000", rec.DateOfBirth)
	assert.Equal(t, "Nam", rec.Gender)
	assert.Equal(t, "Cái Keo, Quách Phẩm, Cà Mau", rec.ResidenceAddress)
	assert.Equal(t, "18/08/2025", rec.IssueDate)
	assert.Equal(t, []string{"", "", "", ""}, rec.Extra)
}

func TestParseMalformedKeepsPayload(t *testing.T) {
	rec, failure := Parse("A|B")
	assert.Nil(t, rec)
	require.NotNil(t, failure)
	assert.Equal(t, "A|B", failure.Payload)
	assert.Equal(t, CauseMalformed, failure.Cause)
}

func TestParseSegmentGate(t *testing.T) {
	for n := 1; n < 7; n++ {
		payload := strings.Repeat("x|", n-1) + "x"
		rec, failure := Parse(payload)
		assert.Nil(t, rec, "segments=%d", n)
		require.NotNil(t, failure, "segments=%d", n)
		assert.Equal(t, payload, failure.Payload)
	}

	rec, failure := Parse("a|b|c|d|e|f|g")
	assert.Nil(t, failure)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Extra)
}

func TestParseAbsentSentinel(t *testing.T) {
	rec, failure := Parse("||||||")
	require.Nil(t, failure)

	for _, v := range []string{rec.IDNumber, rec.LegacyIDNumber, rec.FullName, rec.DateOfBirth, rec.Gender, rec.ResidenceAddress, rec.IssueDate} {
		assert.Equal(t, card.DefaultAbsentValue, v)
		assert.NotEmpty(t, v)
	}
}

func TestParserCustomAbsent(t *testing.T) {
	rec, failure := NewParser("N/A").Parse("1||Name|||addr|")
	require.Nil(t, failure)
	assert.Equal(t, "N/A", rec.LegacyIDNumber)
	assert.Equal(t, "N/A", rec.DateOfBirth)
	assert.Equal(t, "N/A", rec.IssueDate)
	assert.Equal(t, "addr", rec.ResidenceAddress)
}

func TestParseDatePassThrough(t *testing.T) {
	rec, failure := Parse("1|2|3|2012200|Nam|addr|1808202512")
	require.Nil(t, failure)
	assert.Equal(t, "2012200", rec.DateOfBirth)
	assert.Equal(t, "1808202512", rec.IssueDate)
}

func TestParseInvalidUTF8(t *testing.T) {
	payload := "1|2|\xff|4|5|6|7"
	rec, failure := Parse(payload)
	assert.Nil(t, rec)
	require.NotNil(t, failure)
	assert.Equal(t, payload, failure.Payload)
}

func TestFormatDateRoundTrip(t *testing.T) {
	for day := 1; day <= 28; day += 9 {
		for month := 1; month <= 12; month += 5 {
			for _, year := range []int{1950, 2000, 2025} {
				raw := fmt.Sprintf("%02d%02d%04d", day, month, year)
				want := fmt.Sprintf("%02d/%02d/%04d", day, month, year)
				assert.Equal(t, want, FormatDate(raw))
			}
		}
	}

	for _, raw := range []string{"", "1", "2012200", "201220001", "20/12/2000"} {
		assert.Equal(t, raw, FormatDate(raw))
	}
}
