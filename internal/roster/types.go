package roster

import (
	"fmt"
	"time"
)

// DocumentType is the identity document kind attached to a person.
type DocumentType string

const (
	DocCC  DocumentType = "CC"
	DocCE  DocumentType = "CE"
	DocTI  DocumentType = "TI"
	DocPA  DocumentType = "PA"
	DocNIT DocumentType = "NIT"
)

// DefaultDocumentType is used when the roster has no usable document type.
const DefaultDocumentType = DocCC

var validDocumentTypes = map[DocumentType]bool{
	DocCC:  true,
	DocCE:  true,
	DocTI:  true,
	DocPA:  true,
	DocNIT: true,
}

// Valid reports whether t is one of the accepted document types.
func (t DocumentType) Valid() bool {
	return validDocumentTypes[t]
}

// Status is the enrollment/access status of a person.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Permission returns the access label shown in the run log for s.
func (s Status) Permission() string {
	if s == StatusActive {
		return "ACCESO PERMITIDO"
	}
	return "ACCESO DENEGADO"
}

// PersonKey is the natural key of a person: document number plus document type.
type PersonKey struct {
	Document     string
	DocumentType DocumentType
}

func (k PersonKey) String() string {
	return fmt.Sprintf("%s %s", k.DocumentType, k.Document)
}

// Row is one raw roster row keyed by column label.
// Only the normalizer reads it; everything downstream works on RosterRecord.
type Row map[string]string

// Snapshot is one full roster export: the header in column order plus the data rows.
// Header order matters for column detection tie-breaks.
type Snapshot struct {
	Name      string
	Header    []string
	HeaderRow int // 1-based sheet row of the header; 0 means row 1
	Rows      []Row

	// RowLines holds the 1-based source line of each entry in Rows when the
	// reader knows it. Blank lines and multi-line cells make it differ from
	// the position after the header.
	RowLines []int
}

// RowNumber returns the 1-based sheet row of Rows[i].
func (s *Snapshot) RowNumber(i int) int {
	if i < len(s.RowLines) && s.RowLines[i] > 0 {
		return s.RowLines[i]
	}
	header := s.HeaderRow
	if header <= 0 {
		header = 1
	}
	return header + 1 + i
}

// RosterRecord is a validated, normalized roster row.
type RosterRecord struct {
	Document     string
	DocumentType DocumentType
	GivenName    string
	FamilyName   string
	FullName     string
	Status       Status
	RowNumber    int // 1-based sheet row, for traceability
}

// Key returns the record's PersonKey.
func (r RosterRecord) Key() PersonKey {
	return PersonKey{Document: r.Document, DocumentType: r.DocumentType}
}

// PersonRecord is a person persisted in the access-control store.
type PersonRecord struct {
	ID           int64
	Document     string
	DocumentType DocumentType
	Name         string
	Status       Status
	RoleID       *int64
}

// Key returns the person's PersonKey.
func (p PersonRecord) Key() PersonKey {
	return PersonKey{Document: p.Document, DocumentType: p.DocumentType}
}

// Case classifies one roster record against the persisted state.
type Case int

const (
	CaseUnclassified Case = 0
	CaseInsert       Case = 1 // active in roster, not persisted
	CaseKeepActive   Case = 2 // active in roster, active persisted
	CaseDeactivate   Case = 3 // inactive in roster, active persisted
	CaseKeepInactive Case = 4 // inactive in roster, inactive persisted
	CaseReactivate   Case = 5 // active in roster, inactive persisted
)

func (c Case) String() string {
	switch c {
	case CaseInsert:
		return "CASO 1"
	case CaseKeepActive:
		return "CASO 2"
	case CaseDeactivate:
		return "CASO 3"
	case CaseKeepInactive:
		return "CASO 4"
	case CaseReactivate:
		return "CASO 5"
	default:
		return "SIN CLASIFICAR"
	}
}

// Bucket is the audit bucket an outcome is accumulated into.
type Bucket string

const (
	BucketNew         Bucket = "nuevos"
	BucketReactivated Bucket = "reactivados"
	BucketDeactivated Bucket = "desactivados"
	BucketMaintained  Bucket = "mantenidos"
	BucketErrored     Bucket = "errores"
)

// Buckets lists every bucket in rendering order.
var Buckets = []Bucket{BucketNew, BucketReactivated, BucketDeactivated, BucketMaintained, BucketErrored}

// Bucket returns the audit bucket for a successfully applied case.
func (c Case) Bucket() Bucket {
	switch c {
	case CaseInsert:
		return BucketNew
	case CaseReactivate:
		return BucketReactivated
	case CaseDeactivate:
		return BucketDeactivated
	case CaseKeepActive, CaseKeepInactive:
		return BucketMaintained
	default:
		return BucketErrored
	}
}

// Outcome is the terminal result of reconciling one roster record.
type Outcome struct {
	Record         RosterRecord
	Case           Case
	Action         string
	Success        bool
	Error          string
	ErrorCode      string // support reference, see ClassifyError
	PreviousStatus Status // empty when no person was persisted
	FinalStatus    Status // empty when unknown (errored before lookup)
	SessionsClosed int64
	DryRun         bool
}

// Bucket returns the bucket this outcome belongs to.
func (o Outcome) Bucket() Bucket {
	if !o.Success {
		return BucketErrored
	}
	return o.Case.Bucket()
}

// RunSummary holds the counts of one reconciliation run.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	TotalRows   int
	Dropped     int
	Duplicates  int
	Processed   int
	New         int
	Reactivated int
	Deactivated int
	Maintained  int
	Errored     int
}

// Count returns the count for bucket b.
func (s RunSummary) Count(b Bucket) int {
	switch b {
	case BucketNew:
		return s.New
	case BucketReactivated:
		return s.Reactivated
	case BucketDeactivated:
		return s.Deactivated
	case BucketMaintained:
		return s.Maintained
	case BucketErrored:
		return s.Errored
	default:
		return 0
	}
}

// Phase is the current stage of a run.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhaseReading     Phase = "reading"
	PhaseConnecting  Phase = "connecting"
	PhaseNormalizing Phase = "normalizing"
	PhaseReconciling Phase = "reconciling"
	PhaseReporting   Phase = "reporting"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// Progress is a coarse progress event emitted by the orchestrator.
type Progress struct {
	RunID     string
	Phase     Phase
	Total     int
	Processed int
	Errored   int
}

// Percent returns the progress as a percentage (0-100).
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Processed * 100) / p.Total
}

// ProgressFunc receives progress events. It must not block for long.
type ProgressFunc func(Progress)
