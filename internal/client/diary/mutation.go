package diary

import (
	"context"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
)

// Kind names the mutation a handle belongs to.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindMeal   Kind = "meal"
)

// Mutation is the handle of an issued diary mutation. It completes once the
// remote call and the reconciliation fetch that follows it have both settled.
type Mutation struct {
	kind   Kind
	tempID string
	done   chan struct{}

	// written once before done is closed
	err     error
	entry   models.Entry
	entries []models.Entry
}

func newMutation(kind Kind, tempID string) *Mutation {
	return &Mutation{kind: kind, tempID: tempID, done: make(chan struct{})}
}

func (m *Mutation) Kind() Kind { return m.kind }

// TempID is the local id of the optimistic entry of an add; "" otherwise.
func (m *Mutation) TempID() string { return m.tempID }

func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx is done, and returns the
// error of the remote call. A reconciliation failure is reported by
// Store.Err, not here.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entry is the server's view of the created or updated entry, valid after
// a successful Wait.
func (m *Mutation) Entry() models.Entry {
	<-m.done
	return m.entry
}

// Entries are the entries created by an applied meal.
func (m *Mutation) Entries() []models.Entry {
	<-m.done
	return m.entries
}

func (m *Mutation) finish(err error) {
	m.err = err
	close(m.done)
}

// addTask tracks the create call behind a temporary id so that later
// mutations of that entry can learn its server id.
type addTask struct {
	created  chan struct{}
	serverID string
	err      error
}
