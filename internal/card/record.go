package card

// IdentityRecord keys, in QR payload order.
const (
	RecordIDNumber         = "id_number"
	RecordLegacyIDNumber   = "legacy_id_number"
	RecordFullName         = "full_name"
	RecordDateOfBirth      = "date_of_birth"
	RecordGender           = "gender"
	RecordResidenceAddress = "residence_address"
	RecordIssueDate        = "issue_date"
)

// IdentityRecord is the structured content of a CCCD QR payload. Fields the
// payload leaves empty hold the localization's absent sentinel.
type IdentityRecord struct {
	IDNumber         string   `json:"idNumber"`
	LegacyIDNumber   string   `json:"legacyIdNumber"`
	FullName         string   `json:"fullName"`
	DateOfBirth      string   `json:"dateOfBirth"`
	Gender           string   `json:"gender"`
	ResidenceAddress string   `json:"residenceAddress"`
	IssueDate        string   `json:"issueDate"`
	Extra            []string `json:"extra,omitempty"`
}

// LabeledValue is one display row of a record.
type LabeledValue struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Labeled returns the seven named fields in payload order with display labels.
func (r *IdentityRecord) Labeled(loc *Localization) []LabeledValue {
	if loc == nil {
		loc = DefaultLocalization()
	}
	rows := []struct{ key, value string }{
		{RecordIDNumber, r.IDNumber},
		{RecordLegacyIDNumber, r.LegacyIDNumber},
		{RecordFullName, r.FullName},
		{RecordDateOfBirth, r.DateOfBirth},
		{RecordGender, r.Gender},
		{RecordResidenceAddress, r.ResidenceAddress},
		{RecordIssueDate, r.IssueDate},
	}
	out := make([]LabeledValue, 0, len(rows))
	for _, row := range rows {
		out = append(out, LabeledValue{Key: row.key, Label: loc.RecordLabel(row.key), Value: row.value})
	}
	return out
}

// ParseFailure is the outcome of a payload that cannot be mapped to a record.
type ParseFailure struct {
	Payload string `json:"payload"`
	Cause   string `json:"cause"`
}
