package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func sampleReporter() *Reporter {
	r := NewReporter()
	r.Add(Outcome{
		Record: RosterRecord{Document: "300", DocumentType: DocCC, GivenName: "Eva", FamilyName: "Díaz", FullName: "Eva Díaz", Status: StatusInactive, RowNumber: 4},
		Case:   CaseDeactivate, Action: ActionDeactivated, Success: true,
		PreviousStatus: StatusActive, FinalStatus: StatusInactive, SessionsClosed: 2,
	})
	r.Add(Outcome{
		Record: RosterRecord{Document: "100", DocumentType: DocCC, GivenName: "Ana", FamilyName: "Pérez", FullName: "Ana Pérez", Status: StatusActive, RowNumber: 2},
		Case:   CaseKeepActive, Action: ActionMaintained, Success: true,
		PreviousStatus: StatusActive, FinalStatus: StatusActive,
	})
	r.Add(Outcome{
		Record: RosterRecord{Document: "500", DocumentType: DocTI, GivenName: "Luis", FamilyName: "Rojas", FullName: "Luis Rojas", Status: StatusInactive, RowNumber: 3},
		Case:   CaseUnclassified, Action: ActionFailed, Success: false,
		Error:     "caso no contemplado para TI 500: roster=inactive, persistido=no registrado",
		ErrorCode: "REC001",
	})
	return r
}

func sampleInput(r *Reporter) RenderInput {
	start := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	s := r.Fill(RunSummary{
		RunID:      "0b6f4c1e-9a7d-4a55-8d0a-2f1f5b0c7e11",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Duration:   1500 * time.Millisecond,
		TotalRows:  3,
	})
	return RenderInput{Summary: s, Source: "data/roster.xlsx"}
}

func TestRender_WritesAllArtifacts(t *testing.T) {
	r := sampleReporter()
	sink := newMemSink()

	artifacts, errs := r.Render(sink, sampleInput(r))
	if len(errs) != 0 {
		t.Fatalf("Render() errors = %v", errs)
	}
	if len(artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(artifacts))
	}

	wantNames := []string{
		"sync_log_20240301_083000_0b6f4c1e.txt",
		"change_report_20240301_083000_0b6f4c1e.csv",
		"roster_sync_20240301_083000_0b6f4c1e.xlsx",
	}
	for _, name := range wantNames {
		if _, ok := sink.files[name]; !ok {
			t.Errorf("missing artifact %s", name)
		}
	}
}

func TestRender_RunLog(t *testing.T) {
	r := sampleReporter()
	sink := newMemSink()
	r.Render(sink, sampleInput(r))

	_, data, ok := sink.file("sync_log_")
	if !ok {
		t.Fatal("run log not written")
	}
	log := string(data)

	for _, want := range []string{
		"Origen:      data/roster.xlsx",
		"COMPLETADO CON 1 ERRORES",
		"DESACTIVADOS:        1",
		"MANTENIDOS:          1",
		"ERRORES:             1",
		"[CASO 3] fila 4 CC 300 - Eva Díaz - DESACTIVADO - ACCESO DENEGADO (2 sesiones cerradas)",
		"[CASO 2] fila 2 CC 100 - Ana Pérez - SIN CAMBIOS - ACCESO PERMITIDO",
		"[SIN CLASIFICAR] fila 3 TI 500 - Luis Rojas - ERROR - SIN DATOS - caso no contemplado",
		"persistido=no registrado (codigo REC001)",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("run log missing %q\n%s", want, log)
		}
	}

	// Detail lines are ordered by source row.
	if strings.Index(log, "fila 2") > strings.Index(log, "fila 3") || strings.Index(log, "fila 3") > strings.Index(log, "fila 4") {
		t.Error("detail lines are not ordered by row")
	}
}

func TestRender_DryRunAndCancelledLabels(t *testing.T) {
	r := sampleReporter()
	in := sampleInput(r)
	in.DryRun = true
	in.Cancelled = true

	var buf bytes.Buffer
	if err := writeRunLog(&buf, in, r.Outcomes()); err != nil {
		t.Fatalf("writeRunLog() error = %v", err)
	}
	if !strings.Contains(buf.String(), "SIMULACION") {
		t.Error("dry run not labelled")
	}
	if !strings.Contains(buf.String(), "CANCELADO") {
		t.Error("cancellation not labelled")
	}
}

func TestRender_ChangeReportExcludesMaintained(t *testing.T) {
	r := sampleReporter()
	sink := newMemSink()
	r.Render(sink, sampleInput(r))

	_, data, ok := sink.file("change_report_")
	if !ok {
		t.Fatal("change report not written")
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse change report: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2 changes", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(changeReportHeader, ",") {
		t.Errorf("header = %v", records[0])
	}
	// Row 3 (error) sorts before row 4 (deactivated).
	if records[1][4] != "500" || records[1][1] != string(BucketErrored) || records[1][12] != "REC001" {
		t.Errorf("first change = %v, want errored 500", records[1])
	}
	if records[2][4] != "300" || records[2][10] != "2" || records[2][9] != "ACCESO DENEGADO" {
		t.Errorf("second change = %v, want deactivated 300 with 2 sessions", records[2])
	}
}

func TestRender_RosterWorkbook(t *testing.T) {
	r := sampleReporter()
	sink := newMemSink()
	r.Render(sink, sampleInput(r))

	_, data, ok := sink.file("roster_sync_")
	if !ok {
		t.Fatal("roster workbook not written")
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(rosterSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][1] != "Número de Documento" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "100" || rows[1][4] != "ACTIVO" || rows[1][5] != "ACCESO PERMITIDO" {
		t.Errorf("row 2 = %v", rows[1])
	}
	if rows[3][1] != "300" || rows[3][4] != "INACTIVO" || rows[3][6] != "CASO 3" {
		t.Errorf("row 4 = %v", rows[3])
	}
}

func TestRender_FatalSkipsRoster(t *testing.T) {
	r := NewReporter()
	in := sampleInput(r)
	in.Fatal = newRunError(ErrEmptySnapshot)

	artifacts, errs := r.Render(newMemSink(), in)
	if len(errs) != 0 {
		t.Fatalf("Render() errors = %v", errs)
	}
	for _, a := range artifacts {
		if a.Kind == ArtifactRoster {
			t.Error("roster written for a fatal run")
		}
	}
	if len(artifacts) != 2 {
		t.Errorf("artifacts = %v, want log and change report", artifacts)
	}
}

func TestRender_SinkFailureIsReported(t *testing.T) {
	r := sampleReporter()
	sink := newMemSink()
	sink.fail["sync_log_"] = errors.New("permission denied")

	artifacts, errs := r.Render(sink, sampleInput(r))
	if len(errs) != 1 || errs[0].Kind != ArtifactLog {
		t.Fatalf("errors = %v, want one log failure", errs)
	}
	if !strings.Contains(errs[0].Error(), "permission denied") {
		t.Errorf("error = %q", errs[0].Error())
	}
	if len(artifacts) != 2 {
		t.Errorf("artifacts = %d, want the other two", len(artifacts))
	}
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir() + "/out"
	w, location, err := DirSink{Dir: dir}.Create("a.txt")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(location, "out/a.txt") {
		t.Errorf("location = %q", location)
	}
}
