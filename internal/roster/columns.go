package roster

// columns.go locates the roster fields in an arbitrary export header.
//
// Roster exports are produced by hand-maintained spreadsheets, so header labels
// drift between runs ("Número de Documento", "NUMERO DOCUMENTO", "Documento").
// Detection is a case- and accent-insensitive "contains" match against an
// ordered synonym list per field. Synonyms are tried in declaration order and,
// within one synonym, columns are tried left to right.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is one logical roster field.
type Field int

const (
	FieldDocumentType Field = iota
	FieldDocument
	FieldGivenName
	FieldFamilyName
	FieldStatus
)

// detectionOrder is the order fields claim columns in. Document type goes
// first so "Tipo de Documento" is not taken as the document number column.
var detectionOrder = []Field{FieldDocumentType, FieldDocument, FieldGivenName, FieldFamilyName, FieldStatus}

func (f Field) String() string {
	switch f {
	case FieldDocumentType:
		return "tipo de documento"
	case FieldDocument:
		return "numero de documento"
	case FieldGivenName:
		return "nombre"
	case FieldFamilyName:
		return "apellidos"
	case FieldStatus:
		return "estado"
	default:
		return "desconocido"
	}
}

// Required reports whether detection of f is mandatory.
func (f Field) Required() bool {
	return f != FieldDocumentType
}

// columnSynonyms holds the accent-folded, lowercase label fragments per field.
var columnSynonyms = map[Field][]string{
	FieldDocumentType: {"tipo de documento", "tipo documento", "tipo de identificacion", "tipo identificacion", "tipo doc"},
	FieldDocument:     {"numero de documento", "numero documento", "no. documento", "documento", "identificacion", "cedula"},
	FieldGivenName:    {"nombres", "nombre"},
	FieldFamilyName:   {"apellidos", "apellido"},
	FieldStatus:       {"estado aprendiz", "estado", "situacion", "status"},
}

// ColumnMapping maps each detected field to the header label that supplies it.
type ColumnMapping map[Field]string

// Column returns the header label for f.
func (m ColumnMapping) Column(f Field) (string, bool) {
	col, ok := m[f]
	return col, ok
}

// DetectColumns infers which header column supplies each roster field.
// The document type column is optional; a missing document, given name,
// family name or status column yields a *MissingColumnsError.
func DetectColumns(header []string) (ColumnMapping, error) {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = foldLabel(CleanCell(h))
	}

	mapping := make(ColumnMapping, len(detectionOrder))
	claimed := make(map[int]bool, len(header))
	var missing []Field

	for _, field := range detectionOrder {
		pos := findColumn(folded, columnSynonyms[field], claimed)
		if pos < 0 {
			if field.Required() {
				missing = append(missing, field)
			}
			continue
		}
		claimed[pos] = true
		mapping[field] = header[pos]
	}

	if len(missing) > 0 {
		return mapping, &MissingColumnsError{Fields: missing, Header: header}
	}
	return mapping, nil
}

// findColumn returns the position of the first unclaimed column containing a
// synonym, trying synonyms in order. Returns -1 when nothing matches.
func findColumn(folded []string, synonyms []string, claimed map[int]bool) int {
	for _, syn := range synonyms {
		for i, label := range folded {
			if claimed[i] || label == "" {
				continue
			}
			if strings.Contains(label, syn) {
				return i
			}
		}
	}
	return -1
}

// foldLabel lowercases s, strips diacritics and collapses whitespace.
func foldLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(stripDiacritics(s)), " "))
}

// stripDiacritics removes combining marks after NFD decomposition ("Número" -> "Numero").
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
