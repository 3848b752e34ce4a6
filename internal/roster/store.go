package roster

import "context"

// Store is the access-control store holding the persisted population.
// Satisfied by postgres.Store and by in-memory fakes in tests.
type Store interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// FindRoleIDByName returns the id of the named role, or nil if no such role exists.
	FindRoleIDByName(ctx context.Context, name string) (*int64, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; the error from fn is returned as-is.
	InTx(ctx context.Context, fn func(tx PersonTx) error) error
}

// PersonTx is the set of person operations available inside a store transaction.
type PersonTx interface {
	// FindPersonByKey returns the person with the given key, or nil if none exists.
	FindPersonByKey(ctx context.Context, key PersonKey) (*PersonRecord, error)

	// InsertPerson inserts p and returns its new id.
	InsertPerson(ctx context.Context, p PersonRecord) (int64, error)

	// UpdatePersonStatus sets the status of the person with the given key.
	UpdatePersonStatus(ctx context.Context, key PersonKey, status Status) error

	// RenamePerson sets the name of the person with the given key.
	RenamePerson(ctx context.Context, key PersonKey, name string) error

	// CloseOpenAccessSessions closes every open access session owned by the
	// person and returns how many were closed.
	CloseOpenAccessSessions(ctx context.Context, personID int64) (int64, error)
}

// SnapshotSource yields one roster snapshot.
type SnapshotSource interface {
	// Open reads the full snapshot. Any error is treated as the source being unavailable.
	Open(ctx context.Context) (*Snapshot, error)

	// Location describes where the snapshot comes from (path, URL) for logs.
	Location() string
}
