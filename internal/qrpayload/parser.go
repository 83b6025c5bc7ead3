/**
 * QR Payload Parser
 *
 * Parses the pipe-delimited text stored in a CCCD QR code:
 *
 *   cccd|cmnd|full name|DDMMYYYY birth|gender|residence|DDMMYYYY issue|...
 */

package qrpayload

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HenSanInDuty/ocr-cccd/internal/card"
)

const (
	separator   = "|"
	minSegments = 7
)

// CauseMalformed is the ParseFailure cause for payloads with too few segments.
const CauseMalformed = "malformed QR format"

// Parser maps QR payloads onto identity records.
type Parser struct {
	absent string
}

// NewParser creates a parser that fills empty segments with absent.
func NewParser(absent string) *Parser {
	if absent == "" {
		absent = card.DefaultAbsentValue
	}
	return &Parser{absent: absent}
}

var defaultParser = NewParser(card.DefaultAbsentValue)

// Parse uses the default absent sentinel.
func Parse(payload string) (*card.IdentityRecord, *card.ParseFailure) {
	return defaultParser.Parse(payload)
}

// Parse returns exactly one of a record or a failure. It never panics.
func (p *Parser) Parse(payload string) (record *card.IdentityRecord, failure *card.ParseFailure) {
	defer func() {
		if r := recover(); r != nil {
			record = nil
			failure = &card.ParseFailure{
				Payload: payload,
				Cause:   fmt.Sprintf("cannot parse QR payload: %v", r),
			}
		}
	}()

	if !utf8.ValidString(payload) {
		return nil, &card.ParseFailure{Payload: payload, Cause: "cannot parse QR payload: invalid UTF-8"}
	}

	parts := strings.Split(payload, separator)
	if len(parts) < minSegments {
		return nil, &card.ParseFailure{Payload: payload, Cause: CauseMalformed}
	}

	record = &card.IdentityRecord{
		IDNumber:         p.value(parts[0]),
		LegacyIDNumber:   p.value(parts[1]),
		FullName:         p.value(parts[2]),
		DateOfBirth:      p.date(parts[3]),
		Gender:           p.value(parts[4]),
		ResidenceAddress: p.value(parts[5]),
		IssueDate:        p.date(parts[6]),
	}
	if len(parts) > minSegments {
		record.Extra = append([]string(nil), parts[minSegments:]...)
	}
	return record, nil
}

func (p *Parser) value(segment string) string {
	if segment == "" {
		return p.absent
	}
	return segment
}

func (p *Parser) date(segment string) string {
	if segment == "" {
		return p.absent
	}
	return FormatDate(segment)
}

// FormatDate turns an 8-character DDMMYYYY value into DD/MM/YYYY. Any other
// length is returned unchanged.
func FormatDate(raw string) string {
	runes := []rune(raw)
	if len(runes) != 8 {
		return raw
	}
	return string(runes[0:2]) + "/" + string(runes[2:4]) + "/" + string(runes[4:8])
}
