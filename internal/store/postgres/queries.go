package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

// SessionCloseReason is recorded on access sessions closed by a deactivation.
const SessionCloseReason = "roster_deactivation"

// ErrPersonNotFound is returned when an update matches no person row.
var ErrPersonNotFound = errors.New("person not found")

const (
	findPersonSQL = `
SELECT id, document, document_type, name, status, role_id
FROM persons
WHERE document = $1 AND document_type = $2
FOR UPDATE`

	insertPersonSQL = `
INSERT INTO persons (document, document_type, name, status, role_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	updateStatusSQL = `
UPDATE persons SET status = $3, updated_at = now()
WHERE document = $1 AND document_type = $2`

	renamePersonSQL = `
UPDATE persons SET name = $3, updated_at = now()
WHERE document = $1 AND document_type = $2`

	closeSessionsSQL = `
UPDATE access_sessions SET closed_at = now(), close_reason = $2
WHERE person_id = $1 AND closed_at IS NULL`

	findRoleSQL = `SELECT id FROM roles WHERE name = $1`
)

// personTx implements roster.PersonTx on one transaction.
type personTx struct {
	q DBTX
}

var _ roster.PersonTx = (*personTx)(nil)

func (t *personTx) FindPersonByKey(ctx context.Context, key roster.PersonKey) (*roster.PersonRecord, error) {
	var (
		p       roster.PersonRecord
		docType string
		status  string
	)
	err := t.q.QueryRow(ctx, findPersonSQL, key.Document, string(key.DocumentType)).
		Scan(&p.ID, &p.Document, &docType, &p.Name, &status, &p.RoleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.DocumentType = roster.DocumentType(docType)
	p.Status = roster.Status(status)
	return &p, nil
}

func (t *personTx) InsertPerson(ctx context.Context, p roster.PersonRecord) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, insertPersonSQL,
		p.Document, string(p.DocumentType), p.Name, string(p.Status), p.RoleID,
	).Scan(&id)
	return id, err
}

func (t *personTx) UpdatePersonStatus(ctx context.Context, key roster.PersonKey, status roster.Status) error {
	return t.execOne(ctx, updateStatusSQL, key, string(status))
}

func (t *personTx) RenamePerson(ctx context.Context, key roster.PersonKey, name string) error {
	return t.execOne(ctx, renamePersonSQL, key, name)
}

func (t *personTx) CloseOpenAccessSessions(ctx context.Context, personID int64) (int64, error) {
	tag, err := t.q.Exec(ctx, closeSessionsSQL, personID, SessionCloseReason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// execOne runs a keyed update and fails if no row matched.
func (t *personTx) execOne(ctx context.Context, sql string, key roster.PersonKey, value string) error {
	tag, err := t.q.Exec(ctx, sql, key.Document, string(key.DocumentType), value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPersonNotFound, key)
	}
	return nil
}

func findRoleID(ctx context.Context, q DBTX, name string) (*int64, error) {
	var id int64
	err := q.QueryRow(ctx, findRoleSQL, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
