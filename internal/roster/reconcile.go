package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRoleName is the role given to people inserted from the roster.
const DefaultRoleName = "aprendiz"

// DefaultRecordTimeout bounds the store work for a single record.
const DefaultRecordTimeout = 30 * time.Second

// Actions recorded on outcomes.
const (
	ActionInserted    = "INSERTADO"
	ActionReactivated = "REACTIVADO"
	ActionDeactivated = "DESACTIVADO"
	ActionMaintained  = "SIN CAMBIOS"
	ActionFailed      = "ERROR"
)

// errDryRun forces the record transaction to roll back in dry-run mode.
var errDryRun = errors.New("dry run")

// Reconciler applies the reconciliation case table to one roster record at a time.
// It is safe for concurrent use as long as the Store is.
type Reconciler struct {
	store         Store
	roleName      string
	recordTimeout time.Duration
	dryRun        bool
	logger        *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithRoleName overrides the role given to inserted people.
func WithRoleName(name string) ReconcilerOption {
	return func(r *Reconciler) {
		if name != "" {
			r.roleName = name
		}
	}
}

// WithRecordTimeout overrides the per-record store timeout.
func WithRecordTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.recordTimeout = d
		}
	}
}

// WithDryRun makes every record transaction roll back after classification.
func WithDryRun(dryRun bool) ReconcilerOption {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

// WithLogger sets the logger used for record-level diagnostics.
func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:         store,
		roleName:      DefaultRoleName,
		recordTimeout: DefaultRecordTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the reconciliation case for a roster status against the
// persisted person (nil when not persisted).
func Classify(rosterStatus Status, person *PersonRecord) Case {
	if person == nil {
		if rosterStatus == StatusActive {
			return CaseInsert
		}
		return CaseUnclassified
	}

	switch {
	case rosterStatus == StatusActive && person.Status == StatusActive:
		return CaseKeepActive
	case rosterStatus == StatusInactive && person.Status == StatusActive:
		return CaseDeactivate
	case rosterStatus == StatusInactive && person.Status == StatusInactive:
		return CaseKeepInactive
	case rosterStatus == StatusActive && person.Status == StatusInactive:
		return CaseReactivate
	default:
		return CaseUnclassified
	}
}

// UnclassifiedError reports a roster/persisted combination outside the case table.
type UnclassifiedError struct {
	Key             PersonKey
	RosterStatus    Status
	PersistedStatus Status // empty when not persisted
}

func (e *UnclassifiedError) Error() string {
	persisted := string(e.PersistedStatus)
	if persisted == "" {
		persisted = "no registrado"
	}
	return fmt.Sprintf("caso no contemplado para %s: roster=%s, persistido=%s", e.Key, e.RosterStatus, persisted)
}

// Reconcile classifies rec against the persisted state and applies the
// prescribed mutation in a single transaction. It never returns an error:
// failures, timeouts and panics become an errored Outcome and nothing from
// the record's transaction is kept.
func (r *Reconciler) Reconcile(ctx context.Context, rec RosterRecord) (out Outcome) {
	out = Outcome{Record: rec, DryRun: r.dryRun}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic reconciling record",
				"document", rec.Document,
				"document_type", rec.DocumentType,
				"panic", p,
			)
			out = r.failed(out, fmt.Errorf("internal error: %v", p))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.recordTimeout)
	defer cancel()

	err := r.store.InTx(ctx, func(tx PersonTx) error {
		if err := r.apply(ctx, tx, rec, &out); err != nil {
			return err
		}
		if r.dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", r.recordTimeout, err)
		}
		r.logger.Warn("record reconciliation failed",
			"document", rec.Document,
			"document_type", rec.DocumentType,
			"row", rec.RowNumber,
			"case", out.Case,
			"error", err,
		)
		return r.failed(out, err)
	}

	out.Success = true
	return out
}

// apply performs the lookup, classification and mutation for one record.
// It fills out as it goes so a failure still reports what was classified.
func (r *Reconciler) apply(ctx context.Context, tx PersonTx, rec RosterRecord, out *Outcome) error {
	key := rec.Key()

	person, err := tx.FindPersonByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", key, err)
	}
	if person != nil {
		out.PreviousStatus = person.Status
	}

	out.Case = Classify(rec.Status, person)

	switch out.Case {
	case CaseInsert:
		roleID, err := r.store.FindRoleIDByName(ctx, r.roleName)
		if err != nil {
			return fmt.Errorf("lookup role %q: %w", r.roleName, err)
		}
		if roleID == nil {
			r.logger.Warn("default role not found, inserting without role", "role", r.roleName, "document", rec.Document)
		}
		if _, err := tx.InsertPerson(ctx, PersonRecord{
			Document:     rec.Document,
			DocumentType: rec.DocumentType,
			Name:         rec.FullName,
			Status:       StatusActive,
			RoleID:       roleID,
		}); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
		out.Action = ActionInserted
		out.FinalStatus = StatusActive

	case CaseKeepActive, CaseKeepInactive:
		out.Action = ActionMaintained
		out.FinalStatus = person.Status

	case CaseDeactivate:
		if err := tx.UpdatePersonStatus(ctx, key, StatusInactive); err != nil {
			return fmt.Errorf("deactivate %s: %w", key, err)
		}
		closed, err := tx.CloseOpenAccessSessions(ctx, person.ID)
		if err != nil {
			return fmt.Errorf("close access sessions for %s: %w", key, err)
		}
		out.SessionsClosed = closed
		out.Action = ActionDeactivated
		out.FinalStatus = StatusInactive

	case CaseReactivate:
		if err := tx.UpdatePersonStatus(ctx, key, StatusActive); err != nil {
			return fmt.Errorf("reactivate %s: %w", key, err)
		}
		if err := tx.RenamePerson(ctx, key, rec.FullName); err != nil {
			return fmt.Errorf("rename %s: %w", key, err)
		}
		out.Action = ActionReactivated
		out.FinalStatus = StatusActive

	default:
		var persisted Status
		if person != nil {
			persisted = person.Status
		}
		return &UnclassifiedError{Key: key, RosterStatus: rec.Status, PersistedStatus: persisted}
	}

	return nil
}

// failed turns out into an errored outcome. The record's transaction was
// rolled back, so the final state is whatever was persisted before.
func (r *Reconciler) failed(out Outcome, err error) Outcome {
	out.Success = false
	out.Action = ActionFailed
	out.Error = err.Error()
	out.ErrorCode = ClassifyError(err).Code
	out.FinalStatus = out.PreviousStatus
	out.SessionsClosed = 0
	return out
}
