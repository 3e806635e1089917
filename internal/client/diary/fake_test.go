package diary

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

// fakeRemote is an in-memory diary service. Calls can be held back with
// gates: "create", "delete:<id>", "update:<id>", "meal", "get#<n>" (the n-th
// GetDiary, which captures state before waiting so it answers late with old
// data).
type fakeRemote struct {
	mu      sync.Mutex
	days    map[string][]models.Category
	nextID  int
	gets    int
	calls   []string
	gates   map[string]chan struct{}
	getErr  error
	failOps map[string]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		days:    make(map[string][]models.Category),
		gates:   make(map[string]chan struct{}),
		failOps: make(map[string]error),
	}
}

func key(d time.Time) string { return d.Format(common.DateLayout) }

func (f *fakeRemote) seed(d time.Time, cats ...models.Category) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days[key(d)] = cats
}

func (f *fakeRemote) gate(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[name] = ch
	return ch
}

func (f *fakeRemote) wait(name string) {
	f.mu.Lock()
	ch := f.gates[name]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRemote) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = err
}

func (f *fakeRemote) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeRemote) GetDiary(ctx context.Context, date time.Time) (models.DiarySnapshot, error) {
	f.mu.Lock()
	f.gets++
	n := f.gets
	f.calls = append(f.calls, "get "+key(date))
	snap := models.DiarySnapshot{Date: models.Day(date), Categories: f.days[key(date)]}.Clone()
	err := f.getErr
	f.mu.Unlock()

	f.wait(fmt.Sprintf("get#%d", n))
	if err != nil {
		return models.DiarySnapshot{}, err
	}
	return snap.WithTotals(), nil
}

func (f *fakeRemote) CreateEntry(ctx context.Context, date time.Time, ne models.NewEntry) (models.Entry, error) {
	f.wait("create")
	f.record("create")

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["create"]; err != nil {
		return models.Entry{}, err
	}
	f.nextID++
	e := models.Entry{ID: fmt.Sprintf("srv-%d", f.nextID), Quantity: ne.Quantity}
	if ne.Food != nil {
		e.Food = *ne.Food
	} else {
		e.Food = models.FoodItem{ID: ne.FoodID, Name: "stored " + ne.FoodID}
	}
	cats := f.days[key(date)]
	for i := range cats {
		if cats[i].ID == ne.CategoryID {
			cats[i].Entries = append(cats[i].Entries, e)
			return e, nil
		}
	}
	return models.Entry{}, &common.ServerError{Status: http.StatusNotFound, Detail: "Category not found"}
}

func (f *fakeRemote) findLocked(id string) (day string, ci, ei int, ok bool) {
	for d, cats := range f.days {
		for i, c := range cats {
			for j, e := range c.Entries {
				if e.ID == id {
					return d, i, j, true
				}
			}
		}
	}
	return "", 0, 0, false
}

func (f *fakeRemote) DeleteEntry(ctx context.Context, id string) error {
	f.wait("delete:" + id)
	f.record("delete " + id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["delete"]; err != nil {
		return err
	}
	d, ci, ei, ok := f.findLocked(id)
	if !ok {
		return &common.ServerError{Status: http.StatusNotFound, Detail: "Entry not found"}
	}
	c := &f.days[d][ci]
	c.Entries = slices.Delete(c.Entries, ei, ei+1)
	return nil
}

func (f *fakeRemote) UpdateEntry(ctx context.Context, id string, p models.EntryPatch) (models.Entry, error) {
	f.wait("update:" + id)
	f.record("update " + id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["update"]; err != nil {
		return models.Entry{}, err
	}
	d, ci, ei, ok := f.findLocked(id)
	if !ok {
		return models.Entry{}, &common.ServerError{Status: http.StatusNotFound, Detail: "Entry not found"}
	}
	cats := f.days[d]
	e := cats[ci].Entries[ei]
	if p.Quantity != nil {
		e.Quantity = *p.Quantity
		cats[ci].Entries[ei] = e
	}
	if p.CategoryID != nil && *p.CategoryID != cats[ci].ID {
		cats[ci].Entries = slices.Delete(cats[ci].Entries, ei, ei+1)
		for i := range cats {
			if cats[i].ID == *p.CategoryID {
				cats[i].Entries = append(cats[i].Entries, e)
			}
		}
	}
	return e, nil
}

func (f *fakeRemote) ApplyMeal(ctx context.Context, date time.Time, mealID, categoryID string) ([]models.Entry, error) {
	f.wait("meal")
	f.record("meal " + mealID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["meal"]; err != nil {
		return nil, err
	}
	cats := f.days[key(date)]
	var added []models.Entry
	for i := range cats {
		if cats[i].ID != categoryID {
			continue
		}
		for _, name := range []string{"Rice", "Beans"} {
			f.nextID++
			e := models.Entry{ID: fmt.Sprintf("srv-%d", f.nextID), Quantity: 1,
				Food: models.FoodItem{ID: "f-" + name, Name: name, Calories: 200, CarbsG: 40}}
			cats[i].Entries = append(cats[i].Entries, e)
			added = append(added, e)
		}
	}
	return added, nil
}
