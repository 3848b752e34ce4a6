// Package source reads roster snapshots from spreadsheet exports.
//
// Two formats are supported, chosen by file extension:
//
//   - .csv  streamed through encoding/csv after charset decoding (UTF-8 with
//     optional BOM by default, Windows-1252 / ISO-8859-1 on request)
//   - .xlsx read row by row with excelize
//
// Both produce a roster.Snapshot whose header is the first non-empty row.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

// ErrUnsupportedFormat is returned for input files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported roster format")

// Options tunes how a snapshot file is read.
type Options struct {
	Sheet    string // XLSX sheet; empty selects the active sheet
	Encoding string // CSV charset: "utf-8" (default), "windows-1252", "iso-8859-1"
	Comma    rune   // CSV delimiter; 0 detects ',' or ';' from the header line
}

// New returns the SnapshotSource for path based on its extension.
func New(path string, opts Options) (roster.SnapshotSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return &CSVFile{Path: path, Encoding: opts.Encoding, Comma: opts.Comma}, nil
	case ".xlsx", ".xlsm":
		return &XLSXFile{Path: path, Sheet: opts.Sheet}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// snapshotBuilder turns raw records into a roster.Snapshot.
// Leading empty records are skipped; the first non-empty one is the header.
type snapshotBuilder struct {
	snap   *roster.Snapshot
	labels []string
}

func newSnapshotBuilder(name string) *snapshotBuilder {
	return &snapshotBuilder{snap: &roster.Snapshot{Name: name}}
}

// add consumes the record found at the given 1-based line of the file.
func (b *snapshotBuilder) add(line int, record []string) {
	if b.labels == nil {
		if isEmptyRecord(record) {
			return
		}
		b.labels = make([]string, len(record))
		copy(b.labels, record)
		b.snap.HeaderRow = line
		for _, label := range record {
			if strings.TrimSpace(label) != "" {
				b.snap.Header = append(b.snap.Header, label)
			}
		}
		return
	}

	row := make(roster.Row, len(b.labels))
	for i, label := range b.labels {
		if strings.TrimSpace(label) == "" || i >= len(record) {
			continue
		}
		// Repeated labels keep the leftmost column.
		if _, seen := row[label]; seen {
			continue
		}
		row[label] = record[i]
	}
	b.snap.Rows = append(b.snap.Rows, row)
	b.snap.RowLines = append(b.snap.RowLines, line)
}

// finish drops trailing empty rows and returns the snapshot.
func (b *snapshotBuilder) finish() *roster.Snapshot {
	rows := b.snap.Rows
	for len(rows) > 0 && isEmptyRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	b.snap.Rows = rows
	b.snap.RowLines = b.snap.RowLines[:len(rows)]
	return b.snap
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func isEmptyRow(row roster.Row) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ArchiveDir is the directory, next to the input, that processed snapshots are moved into.
const ArchiveDir = "processed"

// Archive moves a processed snapshot into ArchiveDir beside it, stamping the
// file name so repeated exports with the same name never collide.
// Returns the new path.
func Archive(path string, at time.Time) (string, error) {
	dir := filepath.Join(filepath.Dir(path), ArchiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s directory: %w", ArchiveDir, err)
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	dest := filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, at.Format("20060102_150405"), ext))

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", filepath.Base(path), ArchiveDir, err)
	}
	return dest, nil
}
