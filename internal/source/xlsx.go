package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

// XLSXFile is a roster snapshot exported as an Excel workbook.
type XLSXFile struct {
	Path  string
	Sheet string
}

// Location implements roster.SnapshotSource.
func (x *XLSXFile) Location() string { return x.Path }

// Open implements roster.SnapshotSource. Rows are read with the streaming
// row iterator so large workbooks are not expanded into a cell grid.
func (x *XLSXFile) Open(ctx context.Context) (*roster.Snapshot, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, filepath.Base(x.Path))
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	b := newSnapshotBuilder(filepath.Base(x.Path))
	for n := 0; rows.Next(); n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d of %q: %w", n+1, sheet, err)
		}
		b.add(n+1, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return b.finish(), nil
}
