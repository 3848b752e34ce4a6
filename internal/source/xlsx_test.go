package source

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows to sheet, starting at A<startRow>.
func writeWorkbook(t *testing.T, sheet string, startRow int, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, startRow+i)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "roster.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestXLSXFile_Open(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", 1, [][]any{
		{"Tipo de Documento", "Número de Documento", "Nombres", "Apellidos", "Estado"},
		{"CC", "100", "Ana", "Pérez", "EN FORMACIÓN"},
		{"TI", 200, "Luis", "Rojas", "CANCELADO"},
	})

	src := &XLSXFile{Path: path}
	snap, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	wantHeader := []string{"Tipo de Documento", "Número de Documento", "Nombres", "Apellidos", "Estado"}
	if !reflect.DeepEqual(snap.Header, wantHeader) {
		t.Errorf("header = %q, want %q", snap.Header, wantHeader)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Rows))
	}
	if got := snap.Rows[1]["Número de Documento"]; got != "200" {
		t.Errorf("numeric document = %q, want %q", got, "200")
	}
	if got := snap.Rows[0]["Estado"]; got != "EN FORMACIÓN" {
		t.Errorf("status = %q", got)
	}
	if snap.HeaderRow != 1 || snap.RowNumber(1) != 3 {
		t.Errorf("header row = %d, second data row = %d; want 1, 3", snap.HeaderRow, snap.RowNumber(1))
	}
}

func TestXLSXFile_HeaderBelowTitleRows(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", 3, [][]any{
		{"Documento", "Nombres", "Apellidos", "Estado"},
		{"100", "Ana", "Pérez", "ACTIVO"},
	})

	snap, err := (&XLSXFile{Path: path}).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.HeaderRow != 3 {
		t.Errorf("header row = %d, want 3", snap.HeaderRow)
	}
	if snap.RowNumber(0) != 4 {
		t.Errorf("first data row = %d, want 4", snap.RowNumber(0))
	}
}

func TestXLSXFile_NamedSheet(t *testing.T) {
	path := writeWorkbook(t, "Aprendices", 1, [][]any{
		{"Documento", "Estado"},
		{"1", "ACTIVO"},
	})

	snap, err := (&XLSXFile{Path: path, Sheet: "Aprendices"}).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(snap.Rows) != 1 || snap.Rows[0]["Documento"] != "1" {
		t.Errorf("rows = %v", snap.Rows)
	}

	if _, err := (&XLSXFile{Path: path, Sheet: "Missing"}).Open(context.Background()); err == nil {
		t.Error("expected error for missing sheet")
	}
}

func TestXLSXFile_EmptySheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", 1, nil)

	snap, err := (&XLSXFile{Path: path}).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(snap.Header) != 0 || len(snap.Rows) != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestXLSXFile_OpenMissing(t *testing.T) {
	src := &XLSXFile{Path: filepath.Join(t.TempDir(), "missing.xlsx")}
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("expected error for missing workbook")
	}
}
