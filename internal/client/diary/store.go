package diary

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/metrics"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/logging"
	"github.com/google/uuid"
)

// ErrNotLoaded is returned by mutations issued before any day was loaded.
var ErrNotLoaded = fmt.Errorf("%w: no diary day loaded", common.ErrValidation)

// Remote is the slice of the service the store needs.
type Remote interface {
	GetDiary(ctx context.Context, date time.Time) (models.DiarySnapshot, error)
	CreateEntry(ctx context.Context, date time.Time, e models.NewEntry) (models.Entry, error)
	UpdateEntry(ctx context.Context, entryID string, p models.EntryPatch) (models.Entry, error)
	DeleteEntry(ctx context.Context, entryID string) error
	ApplyMeal(ctx context.Context, date time.Time, mealID, categoryID string) ([]models.Entry, error)
}

type Store struct {
	remote Remote
	log    logging.Logger
	newID  func() string

	mu       sync.Mutex
	date     time.Time // day of the applied snapshot
	wanted   time.Time // day of the newest Load; responses for other days are stale
	base     models.DiarySnapshot
	loaded   bool
	seq      uint64 // last issued fetch
	baseSeq  uint64 // fetch the base came from
	err      error
	loading  int
	ops      []*overlay
	nextOp   uint64
	adds     map[string]*addTask
	resolved map[string]string

	pending atomic.Int64
	wg      sync.WaitGroup
}

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIDGenerator replaces the temporary id generator. Used by tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(remote Remote, opts ...Option) *Store {
	s := &Store{
		remote:   remote,
		log:      logging.Discard(),
		newID:    func() string { return models.TempIDPrefix + uuid.NewString() },
		adds:     make(map[string]*addTask),
		resolved: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "diary")
	return s
}

// Snapshot returns the visible diary: the last authoritative snapshot with
// every unreconciled optimistic change applied and totals derived from the
// result.
func (s *Store) Snapshot() models.DiarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

func (s *Store) visibleLocked() models.DiarySnapshot {
	if !s.loaded {
		return models.DiarySnapshot{Date: s.wanted}
	}
	return project(s.base.Clone(), s.ops, s.resolved).WithTotals()
}

// Loaded reports whether a snapshot has been applied.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Date is the day currently viewed; before the first snapshot lands, the day
// being loaded.
func (s *Store) Date() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewedLocked()
}

func (s *Store) viewedLocked() time.Time {
	if s.loaded {
		return s.date
	}
	return s.wanted
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Pending is the number of issued mutations not yet reconciled.
func (s *Store) Pending() int { return int(s.pending.Load()) }

// Err is the last load or reconciliation failure; nil after a successful one.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Load fetches date and makes it the viewed day. On failure the previous
// snapshot, and its day, stay visible and the error is kept in Err.
func (s *Store) Load(ctx context.Context, date time.Time) error {
	day := models.Day(date)

	s.mu.Lock()
	s.wanted = day
	s.loading++
	s.mu.Unlock()

	err := s.fetch(ctx, day, nil)

	s.mu.Lock()
	s.loading--
	if err != nil && s.loaded && s.wanted.Equal(day) {
		// the switch failed: go back to accepting the day on screen
		s.wanted = s.date
	}
	s.mu.Unlock()
	return err
}

// Refresh reloads the viewed day.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	date := s.viewedLocked()
	s.mu.Unlock()
	if date.IsZero() {
		return ErrNotLoaded
	}
	return s.Load(ctx, date)
}

// fetch issues a sequenced GetDiary. Overlays listed in settled are marked to
// be dropped by this fetch or any later one.
func (s *Store) fetch(ctx context.Context, date time.Time, settled []uint64) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	for _, op := range s.ops {
		if slices.Contains(settled, op.id) {
			op.clearAt = seq
		}
	}
	s.mu.Unlock()

	snap, err := s.remote.GetDiary(ctx, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if seq > s.baseSeq {
			s.err = err
		}
		s.log.Warn(ctx, "diary fetch failed", "date", date.Format(common.DateLayout), "seq", seq, "error", err)
		return err
	}

	if seq <= s.baseSeq || !snap.Date.Equal(s.wanted) {
		s.log.Debug(ctx, "discarding out-of-date diary fetch", "seq", seq, "applied", s.baseSeq,
			"date", snap.Date.Format(common.DateLayout))
		return nil
	}
	s.applyLocked(seq, snap)
	return nil
}

func (s *Store) applyLocked(seq uint64, snap models.DiarySnapshot) {
	s.base = snap.Clone()
	s.date = s.wanted
	s.baseSeq = seq
	s.loaded = true
	s.err = nil

	kept := s.ops[:0]
	for _, op := range s.ops {
		if !op.clearedBy(seq) {
			kept = append(kept, op)
		}
	}
	clear(s.ops[len(kept):])
	s.ops = kept
	s.forgetAddsLocked()
}

// forgetAddsLocked drops the create tracking of temporary ids that no
// remaining overlay refers to: their add was reconciled and no pending
// mutation still needs the server id.
func (s *Store) forgetAddsLocked() {
	for id := range s.adds {
		inUse := slices.ContainsFunc(s.ops, func(op *overlay) bool {
			return op.entryID == id || (op.kind == opAdd && op.entry.ID == id)
		})
		if !inUse {
			delete(s.adds, id)
			delete(s.resolved, id)
		}
	}
}

// reconcile refetches the viewed day after a mutation settled.
func (s *Store) reconcile(ctx context.Context, opID uint64) {
	s.mu.Lock()
	date := s.viewedLocked()
	s.mu.Unlock()
	if date.IsZero() {
		// Reset while the mutation was in flight.
		return
	}

	var clearIDs []uint64
	if opID != 0 {
		clearIDs = []uint64{opID}
	}
	if err := s.fetch(ctx, date, clearIDs); err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return
	}
	metrics.Reconciliations.WithLabelValues("ok").Inc()
}

func (s *Store) addOpLocked(op *overlay) uint64 {
	s.nextOp++
	op.id = s.nextOp
	s.ops = append(s.ops, op)
	return op.id
}

// issue runs fn detached from the caller, then reconciles and settles m.
func (s *Store) issue(ctx context.Context, m *Mutation, opID uint64, fn func(ctx context.Context) error) {
	s.log.Debug(ctx, "diary mutation issued", "kind", m.kind, "pending", s.pending.Load()+1)
	s.pending.Add(1)
	metrics.PendingMutations.Inc()
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ctx := context.WithoutCancel(ctx)

		err := fn(ctx)
		if err != nil {
			s.log.Warn(ctx, "diary mutation failed", "kind", m.kind, "error", err)
		}
		s.reconcile(ctx, opID)

		s.pending.Add(-1)
		metrics.PendingMutations.Dec()
		m.finish(err)
	}()
}

// Quiesce waits for every issued mutation to settle. Used on shutdown.
func (s *Store) Quiesce(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddEntry logs quantity servings of food in categoryID. The entry is visible
// (and counted in totals) when AddEntry returns.
func (s *Store) AddEntry(ctx context.Context, categoryID string, food models.FoodItem, quantity float64) (*Mutation, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if err := food.Validate(); err != nil {
		return nil, err
	}

	ne := models.NewEntry{CategoryID: categoryID, Quantity: quantity}
	if food.Stored() {
		ne.FoodID = food.ReferenceID()
	} else {
		f := food
		ne.Food = &f
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	visible := s.visibleLocked()
	if _, ok := visible.Category(categoryID); !ok {
		s.mu.Unlock()
		return nil, common.Invalid("category", fmt.Sprintf("unknown category %q", categoryID))
	}

	tempID := s.newID()
	date := visible.Date
	opID := s.addOpLocked(&overlay{
		kind:       opAdd,
		date:       date,
		entry:      models.Entry{ID: tempID, Food: food, Quantity: quantity},
		categoryID: categoryID,
	})
	task := &addTask{created: make(chan struct{})}
	s.adds[tempID] = task
	s.mu.Unlock()

	m := newMutation(KindAdd, tempID)
	s.issue(ctx, m, opID, func(ctx context.Context) error {
		entry, err := s.remote.CreateEntry(ctx, date, ne)

		s.mu.Lock()
		task.err = err
		if err == nil {
			task.serverID = entry.ID
			s.resolved[tempID] = entry.ID
		}
		s.mu.Unlock()
		close(task.created)

		m.entry = entry
		return err
	})
	return m, nil
}

// resolveID maps a temporary id to the server id once its create finished.
// ok is false when the create failed and the entry never existed remotely.
func (s *Store) resolveID(id string) (string, bool) {
	if !models.IsTempID(id) {
		return id, true
	}

	s.mu.Lock()
	task, tracked := s.adds[id]
	sid, known := s.resolved[id]
	s.mu.Unlock()

	if known {
		return sid, true
	}
	if !tracked {
		return "", false
	}
	<-task.created
	if task.err != nil {
		return "", false
	}
	return task.serverID, true
}

// DeleteEntry hides the entry immediately and deletes it remotely. Deleting
// an entry whose create is still in flight waits for the server id; if that
// create failed there is nothing to delete.
func (s *Store) DeleteEntry(ctx context.Context, entryID string) (*Mutation, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	visible := s.visibleLocked()
	if _, _, ok := visible.FindEntry(entryID); !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("entry %q: %w", entryID, common.ErrNotFound)
	}
	opID := s.addOpLocked(&overlay{kind: opDelete, date: visible.Date, entryID: entryID})
	s.mu.Unlock()

	m := newMutation(KindDelete, "")
	s.issue(ctx, m, opID, func(ctx context.Context) error {
		remoteID, ok := s.resolveID(entryID)
		if !ok {
			return nil
		}
		return s.remote.DeleteEntry(ctx, remoteID)
	})
	return m, nil
}

// UpdateEntry changes quantity and/or category, optimistically.
func (s *Store) UpdateEntry(ctx context.Context, entryID string, patch models.EntryPatch) (*Mutation, error) {
	if patch.Empty() {
		return nil, common.Invalid("patch", "nothing to update")
	}
	if patch.Quantity != nil {
		if err := models.ValidateQuantity(*patch.Quantity); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	visible := s.visibleLocked()
	if _, _, ok := visible.FindEntry(entryID); !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("entry %q: %w", entryID, common.ErrNotFound)
	}
	op := &overlay{kind: opUpdate, date: visible.Date, entryID: entryID}
	if patch.Quantity != nil {
		q := *patch.Quantity
		op.quantity = &q
	}
	if patch.CategoryID != nil {
		if _, ok := visible.Category(*patch.CategoryID); !ok {
			s.mu.Unlock()
			return nil, common.Invalid("category", fmt.Sprintf("unknown category %q", *patch.CategoryID))
		}
		op.categoryID = *patch.CategoryID
	}
	opID := s.addOpLocked(op)
	s.mu.Unlock()

	m := newMutation(KindUpdate, "")
	s.issue(ctx, m, opID, func(ctx context.Context) error {
		remoteID, ok := s.resolveID(entryID)
		if !ok {
			return fmt.Errorf("entry %q was never created: %w", entryID, common.ErrNotFound)
		}
		entry, err := s.remote.UpdateEntry(ctx, remoteID, patch)
		m.entry = entry
		return err
	})
	return m, nil
}

// ApplyMeal logs every food of a saved meal. Meal contents are not known
// locally, so nothing changes until the reconciliation lands.
func (s *Store) ApplyMeal(ctx context.Context, mealID, categoryID string) (*Mutation, error) {
	if strings.TrimSpace(mealID) == "" {
		return nil, common.Invalid("meal", "must not be empty")
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	visible := s.visibleLocked()
	if _, ok := visible.Category(categoryID); !ok {
		s.mu.Unlock()
		return nil, common.Invalid("category", fmt.Sprintf("unknown category %q", categoryID))
	}
	date := visible.Date
	s.mu.Unlock()

	m := newMutation(KindMeal, "")
	s.issue(ctx, m, 0, func(ctx context.Context) error {
		entries, err := s.remote.ApplyMeal(ctx, date, mealID, categoryID)
		m.entries = entries
		return err
	})
	return m, nil
}

// Reset forgets everything; used when the session ends. In-flight fetches
// issued before the reset are discarded when they land.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.baseSeq = s.seq
	s.base = models.DiarySnapshot{}
	s.loaded = false
	s.date = time.Time{}
	s.wanted = time.Time{}
	s.err = nil
	s.ops = nil
	s.adds = make(map[string]*addTask)
	s.resolved = make(map[string]string)
}
