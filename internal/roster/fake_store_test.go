package roster

import (
	"context"
	"errors"
	"sync"
)

// memStore is an in-memory Store. InTx snapshots state and restores it when
// fn fails, so tests can observe rollback behaviour.
type memStore struct {
	mu       sync.Mutex
	persons  map[PersonKey]PersonRecord
	sessions map[int64]int // open access sessions per person id
	roles    map[string]int64
	nextID   int64

	pingErr      error
	roleErr      error
	failMutation map[string]error // document -> error returned by any mutation
	failSessions map[string]error // document -> error returned when closing sessions
	panicOn      map[string]bool  // document -> panic on lookup
	commits      int
}

func newMemStore() *memStore {
	return &memStore{
		persons:      make(map[PersonKey]PersonRecord),
		sessions:     make(map[int64]int),
		roles:        map[string]int64{DefaultRoleName: 7},
		failMutation: make(map[string]error),
		failSessions: make(map[string]error),
		panicOn:      make(map[string]bool),
	}
}

// seed stores a person and returns its id.
func (s *memStore) seed(doc string, docType DocumentType, name string, status Status) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.persons[PersonKey{Document: doc, DocumentType: docType}] = PersonRecord{
		ID:           s.nextID,
		Document:     doc,
		DocumentType: docType,
		Name:         name,
		Status:       status,
	}
	return s.nextID
}

func (s *memStore) person(doc string, docType DocumentType) (PersonRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[PersonKey{Document: doc, DocumentType: docType}]
	return p, ok
}

func (s *memStore) openSessions(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *memStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *memStore) FindRoleIDByName(ctx context.Context, name string) (*int64, error) {
	if s.roleErr != nil {
		return nil, s.roleErr
	}
	id, ok := s.roles[name]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx PersonTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persons := make(map[PersonKey]PersonRecord, len(s.persons))
	for k, v := range s.persons {
		persons[k] = v
	}
	sessions := make(map[int64]int, len(s.sessions))
	for k, v := range s.sessions {
		sessions[k] = v
	}
	nextID := s.nextID

	committed := false
	defer func() {
		if !committed {
			s.persons, s.sessions, s.nextID = persons, sessions, nextID
		}
	}()

	if err := fn(&memTx{s: s}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	committed = true
	s.commits++
	return nil
}

// memTx operates on the store while its lock is held by InTx.
type memTx struct {
	s *memStore
}

func (t *memTx) FindPersonByKey(ctx context.Context, key PersonKey) (*PersonRecord, error) {
	if t.s.panicOn[key.Document] {
		panic("corrupt row for " + key.Document)
	}
	p, ok := t.s.persons[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) InsertPerson(ctx context.Context, p PersonRecord) (int64, error) {
	if err := t.s.failMutation[p.Document]; err != nil {
		return 0, err
	}
	key := p.Key()
	if _, exists := t.s.persons[key]; exists {
		return 0, errors.New("duplicate key value violates unique constraint")
	}
	t.s.nextID++
	p.ID = t.s.nextID
	t.s.persons[key] = p
	return p.ID, nil
}

func (t *memTx) UpdatePersonStatus(ctx context.Context, key PersonKey, status Status) error {
	if err := t.s.failMutation[key.Document]; err != nil {
		return err
	}
	p, ok := t.s.persons[key]
	if !ok {
		return errors.New("person not found")
	}
	p.Status = status
	t.s.persons[key] = p
	return nil
}

func (t *memTx) RenamePerson(ctx context.Context, key PersonKey, name string) error {
	p, ok := t.s.persons[key]
	if !ok {
		return errors.New("person not found")
	}
	p.Name = name
	t.s.persons[key] = p
	return nil
}

func (t *memTx) CloseOpenAccessSessions(ctx context.Context, personID int64) (int64, error) {
	for _, p := range t.s.persons {
		if p.ID == personID {
			if err := t.s.failSessions[p.Document]; err != nil {
				return 0, err
			}
		}
	}
	n := t.s.sessions[personID]
	t.s.sessions[personID] = 0
	return int64(n), nil
}
