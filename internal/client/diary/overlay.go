package diary

import (
	"slices"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
)

type opKind int

const (
	opAdd opKind = iota
	opDelete
	opUpdate
)

// overlay is the optimistic projection of one unreconciled mutation.
type overlay struct {
	id   uint64
	kind opKind
	date time.Time

	// add: the temporary entry and its category
	entry models.Entry
	// add: target category; update: destination category or ""
	categoryID string
	// delete, update: target entry (server or temporary id)
	entryID  string
	quantity *float64

	// clearAt is the sequence number of the reconciliation fetch issued after
	// the mutation settled; 0 while the mutation is in flight.
	clearAt uint64
}

func (o *overlay) clearedBy(seq uint64) bool {
	return o.clearAt != 0 && seq >= o.clearAt
}

// project replays ops on top of snap. resolved maps temporary ids to the
// server ids learned from finished creates.
func project(snap models.DiarySnapshot, ops []*overlay, resolved map[string]string) models.DiarySnapshot {
	for _, op := range ops {
		if !op.date.Equal(snap.Date) {
			continue
		}
		switch op.kind {
		case opAdd:
			projectAdd(&snap, op, resolved)
		case opDelete:
			removeEntry(&snap, op.entryID, resolved)
		case opUpdate:
			projectUpdate(&snap, op, resolved)
		}
	}
	return snap
}

func projectAdd(snap *models.DiarySnapshot, op *overlay, resolved map[string]string) {
	e := op.entry
	if sid, ok := resolved[e.ID]; ok {
		if _, _, present := snap.FindEntry(sid); present {
			return
		}
		e.ID = sid
	}
	if c, ok := snap.Category(op.categoryID); ok {
		c.Entries = append(c.Entries, e)
	}
}

// locate finds an entry by id, falling back to the server id of a resolved
// temporary id.
func locate(snap *models.DiarySnapshot, id string, resolved map[string]string) (catIdx, entryIdx int, ok bool) {
	ids := []string{id}
	if sid, found := resolved[id]; found {
		ids = append(ids, sid)
	}
	for ci, c := range snap.Categories {
		for ei, e := range c.Entries {
			if slices.Contains(ids, e.ID) {
				return ci, ei, true
			}
		}
	}
	return 0, 0, false
}

func removeEntry(snap *models.DiarySnapshot, id string, resolved map[string]string) (models.Entry, bool) {
	ci, ei, ok := locate(snap, id, resolved)
	if !ok {
		return models.Entry{}, false
	}
	c := &snap.Categories[ci]
	e := c.Entries[ei]
	c.Entries = slices.Delete(c.Entries, ei, ei+1)
	return e, true
}

func projectUpdate(snap *models.DiarySnapshot, op *overlay, resolved map[string]string) {
	ci, ei, ok := locate(snap, op.entryID, resolved)
	if !ok {
		return
	}
	if op.quantity != nil {
		snap.Categories[ci].Entries[ei].Quantity = *op.quantity
	}
	if op.categoryID == "" || op.categoryID == snap.Categories[ci].ID {
		return
	}
	if _, ok := snap.Category(op.categoryID); !ok {
		return
	}
	e, _ := removeEntry(snap, snap.Categories[ci].Entries[ei].ID, nil)
	dst, _ := snap.Category(op.categoryID)
	dst.Entries = append(dst.Entries, e)
}
