package roster

// artifacts.go renders the three per-run audit artifacts:
//
//   - sync_log_<stamp>.txt       human-readable run log
//   - change_report_<stamp>.csv  non-maintained outcomes, one row each
//   - roster_sync_<stamp>.xlsx   roster-shaped snapshot of the final state
//
// Artifacts record a run; they never guard it. A failed write is returned as
// an ArtifactError and has no effect on mutations already committed.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ArtifactKind names one of the run artifacts.
type ArtifactKind string

const (
	ArtifactLog          ArtifactKind = "log"
	ArtifactChangeReport ArtifactKind = "change_report"
	ArtifactRoster       ArtifactKind = "roster"
)

// Artifact is a written run artifact.
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Location string       `json:"location"`
}

// ArtifactError records an artifact that could not be written.
type ArtifactError struct {
	Kind    ArtifactKind `json:"kind"`
	Message string       `json:"message"` // Err as text, for the ops server
	Err     error        `json:"-"`
}

func (e ArtifactError) Error() string {
	return fmt.Sprintf("write %s artifact: %v", e.Kind, e.Err)
}

// ArtifactSink is where run artifacts are written.
type ArtifactSink interface {
	// Create opens a new artifact called name and returns it with its location.
	Create(name string) (io.WriteCloser, string, error)
}

// DirSink writes artifacts as files in a directory, creating it on demand.
type DirSink struct {
	Dir string
}

// Create implements ArtifactSink.
func (s DirSink) Create(name string) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// RenderInput describes the run being rendered.
type RenderInput struct {
	Summary   RunSummary
	Source    string
	DryRun    bool
	Cancelled bool
	Fatal     error // non-nil when the run aborted
}

// artifactStamp builds the unique part of artifact names: start time plus run id prefix.
func artifactStamp(s RunSummary) string {
	stamp := s.StartedAt.Format("20060102_150405")
	if id := s.RunID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		stamp += "_" + id
	}
	return stamp
}

type artifactJob struct {
	kind   ArtifactKind
	name   string
	render func(io.Writer) error
}

// Render writes the run artifacts to sink. The log and change report are
// always attempted; the synchronized roster only when the run did not abort.
func (r *Reporter) Render(sink ArtifactSink, in RenderInput) ([]Artifact, []ArtifactError) {
	stamp := artifactStamp(in.Summary)
	outcomes := r.Outcomes()

	jobs := []artifactJob{
		{ArtifactLog, "sync_log_" + stamp + ".txt", func(w io.Writer) error {
			return writeRunLog(w, in, outcomes)
		}},
		{ArtifactChangeReport, "change_report_" + stamp + ".csv", func(w io.Writer) error {
			return writeChangeReport(w, r.Changes())
		}},
	}
	if in.Fatal == nil {
		jobs = append(jobs, artifactJob{ArtifactRoster, "roster_sync_" + stamp + ".xlsx", func(w io.Writer) error {
			return writeRosterSnapshot(w, outcomes)
		}})
	}

	var artifacts []Artifact
	var errs []ArtifactError
	for _, job := range jobs {
		location, err := writeArtifact(sink, job.name, job.render)
		if err != nil {
			errs = append(errs, ArtifactError{Kind: job.kind, Message: err.Error(), Err: err})
			continue
		}
		artifacts = append(artifacts, Artifact{Kind: job.kind, Location: location})
	}
	return artifacts, errs
}

// writeArtifact renders into memory first so a rendering error never leaves
// a truncated artifact behind.
func writeArtifact(sink ArtifactSink, name string, render func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	w, location, err := sink.Create(name)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return location, nil
}

const logTimeLayout = "2006-01-02 15:04:05"

// writeRunLog renders the human-readable run log.
func writeRunLog(w io.Writer, in RenderInput, outcomes []Outcome) error {
	var b strings.Builder
	s := in.Summary
	rule := strings.Repeat("=", 72)

	b.WriteString(rule + "\n")
	b.WriteString("SINCRONIZACION DE ROSTER\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Ejecucion:   %s\n", s.RunID)
	fmt.Fprintf(&b, "Origen:      %s\n", in.Source)
	fmt.Fprintf(&b, "Inicio:      %s\n", s.StartedAt.Format(logTimeLayout))
	fmt.Fprintf(&b, "Fin:         %s\n", s.FinishedAt.Format(logTimeLayout))
	fmt.Fprintf(&b, "Duracion:    %s\n", s.Duration.Round(time.Millisecond))
	if in.DryRun {
		b.WriteString("Modo:        SIMULACION (sin cambios persistidos)\n")
	}
	switch {
	case in.Fatal != nil:
		fmt.Fprintf(&b, "Resultado:   ABORTADO - %v\n", in.Fatal)
	case in.Cancelled:
		b.WriteString("Resultado:   CANCELADO (registros pendientes no procesados)\n")
	case s.Errored > 0:
		fmt.Fprintf(&b, "Resultado:   COMPLETADO CON %d ERRORES\n", s.Errored)
	default:
		b.WriteString("Resultado:   COMPLETADO\n")
	}

	b.WriteString("\nRESUMEN\n")
	fmt.Fprintf(&b, "  Filas leidas:        %d\n", s.TotalRows)
	fmt.Fprintf(&b, "  Filas descartadas:   %d\n", s.Dropped)
	fmt.Fprintf(&b, "  Filas duplicadas:    %d\n", s.Duplicates)
	fmt.Fprintf(&b, "  Registros procesados: %d\n", s.Processed)
	for _, bucket := range Buckets {
		fmt.Fprintf(&b, "  %-20s %d\n", strings.ToUpper(string(bucket))+":", s.Count(bucket))
	}

	b.WriteString("\nDETALLE\n")
	for _, o := range outcomes {
		fmt.Fprintf(&b, "  [%s] fila %d %s %s - %s - %s - %s",
			o.Case, o.Record.RowNumber, o.Record.DocumentType, o.Record.Document,
			o.Record.FullName, o.Action, permissionLabel(o.FinalStatus))
		if o.SessionsClosed > 0 {
			fmt.Fprintf(&b, " (%d sesiones cerradas)", o.SessionsClosed)
		}
		if o.Error != "" {
			fmt.Fprintf(&b, " - %s (codigo %s)", o.Error, o.ErrorCode)
		}
		b.WriteString("\n")
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// permissionLabel renders the access state, or SIN DATOS when unknown.
func permissionLabel(s Status) string {
	if s == "" {
		return "SIN DATOS"
	}
	return s.Permission()
}

// changeReportHeader is the column layout of the change report.
var changeReportHeader = []string{
	"caso", "categoria", "fila", "tipo_documento", "documento", "nombre",
	"estado_anterior", "estado_final", "accion", "acceso", "sesiones_cerradas", "error", "codigo_error",
}

// writeChangeReport renders the non-maintained outcomes as CSV.
func writeChangeReport(w io.Writer, changes []Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(changeReportHeader); err != nil {
		return err
	}
	for _, o := range changes {
		if err := cw.Write([]string{
			strconv.Itoa(int(o.Case)),
			string(o.Bucket()),
			strconv.Itoa(o.Record.RowNumber),
			string(o.Record.DocumentType),
			o.Record.Document,
			o.Record.FullName,
			string(o.PreviousStatus),
			string(o.FinalStatus),
			o.Action,
			permissionLabel(o.FinalStatus),
			strconv.FormatInt(o.SessionsClosed, 10),
			o.Error,
			o.ErrorCode,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const rosterSheet = "Roster"

// rosterHeader mirrors the roster export layout plus the reconciliation result.
var rosterHeader = []any{
	"Tipo de Documento", "Número de Documento", "Nombres", "Apellidos",
	"Estado", "Acceso", "Caso", "Fila origen",
}

// writeRosterSnapshot renders the synchronized roster workbook.
func writeRosterSnapshot(w io.Writer, outcomes []Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), rosterSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(rosterSheet, "A1", &rosterHeader); err != nil {
		return err
	}

	for i, o := range outcomes {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			string(o.Record.DocumentType),
			o.Record.Document,
			o.Record.GivenName,
			o.Record.FamilyName,
			statusLabel(o.FinalStatus),
			permissionLabel(o.FinalStatus),
			o.Case.String(),
			o.Record.RowNumber,
		}
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(rosterSheet, "A", "H", 22); err != nil {
		return err
	}
	return f.Write(w)
}

// statusLabel renders a status the way the roster export spells it.
func statusLabel(s Status) string {
	switch s {
	case StatusActive:
		return "ACTIVO"
	case StatusInactive:
		return "INACTIVO"
	default:
		return "SIN CAMBIOS"
	}
}
