package roster

// normalize.go turns raw roster rows into typed RosterRecords.
//
// Rows without a document, given name or family name are dropped rather than
// reported: they are invalid input, not reconciliation failures.
//
// Status translation is deliberately asymmetric:
//   - a recognised "active" synonym yields active
//   - any other non-empty value yields inactive (unknown means no access)
//   - an empty cell yields active (no status means enrolled)

import "strings"

// activeStatuses holds the upper-cased, accent-folded status values that mean enrolled.
var activeStatuses = map[string]bool{
	"EN FORMACION":   true,
	"ACTIVO":         true,
	"ACTIVA":         true,
	"MATRICULADO":    true,
	"MATRICULADA":    true,
	"VIGENTE":        true,
	"INDUCCION":      true,
	"CONDICIONADO":   true,
	"EN INDUCCION":   true,
	"POR CERTIFICAR": true,
}

// Normalize converts one raw row into a RosterRecord using the detected column mapping.
// rowNumber is the 1-based position of the row in the snapshot.
// Returns false when the row lacks a document, given name or family name.
func Normalize(row Row, mapping ColumnMapping, rowNumber int) (RosterRecord, bool) {
	document := cell(row, mapping, FieldDocument)
	given := cell(row, mapping, FieldGivenName)
	family := cell(row, mapping, FieldFamilyName)

	if document == "" || given == "" || family == "" {
		return RosterRecord{}, false
	}

	return RosterRecord{
		Document:     document,
		DocumentType: NormalizeDocumentType(cell(row, mapping, FieldDocumentType)),
		GivenName:    given,
		FamilyName:   family,
		FullName:     strings.TrimSpace(given + " " + family),
		Status:       NormalizeStatus(cell(row, mapping, FieldStatus)),
		RowNumber:    rowNumber,
	}, true
}

// NormalizeDocumentType upper-cases raw and falls back to CC for empty or unknown values.
func NormalizeDocumentType(raw string) DocumentType {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return DefaultDocumentType
	}
	return t
}

// NormalizeStatus translates a raw status cell into a Status.
func NormalizeStatus(raw string) Status {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StatusActive
	}
	if activeStatuses[strings.ToUpper(stripDiacritics(strings.Join(strings.Fields(s), " ")))] {
		return StatusActive
	}
	return StatusInactive
}

// cell returns the cleaned cell for field f, or "" when the column is unmapped.
func cell(row Row, mapping ColumnMapping, f Field) string {
	col, ok := mapping.Column(f)
	if !ok {
		return ""
	}
	return CleanCell(row[col])
}

// CleanCell removes common spreadsheet export artifacts from a cell value:
//   - Trims whitespace
//   - Removes Excel formula prefix (="...")
//   - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
