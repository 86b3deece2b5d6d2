package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/repositories"
)

// memState is the table contents of the in-memory store.
type memState struct {
	checkpoints map[uuid.UUID]models.Checkpoint
	routeCPs    []models.RouteCheckpoint
	runs        map[uuid.UUID]models.PatrolRun
	consumed    map[string]models.ConsumedChallenge
	events      map[uuid.UUID]models.ScanEvent
}

func newMemState() *memState {
	return &memState{
		checkpoints: map[uuid.UUID]models.Checkpoint{},
		runs:        map[uuid.UUID]models.PatrolRun{},
		consumed:    map[string]models.ConsumedChallenge{},
		events:      map[uuid.UUID]models.ScanEvent{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.checkpoints {
		c.checkpoints[k] = v
	}
	c.routeCPs = append(c.routeCPs, s.routeCPs...)
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.consumed {
		c.consumed[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// memDB is one view of the store: the committed state or a transaction's copy.
type memDB struct {
	mu sync.Mutex
	st *memState

	failScanEvents bool
}

// memStore plays Postgres for service tests. Transactions are serialized and
// work on a copy that replaces the committed state only when fn succeeds.
type memStore struct {
	txMu sync.Mutex
	db   *memDB

	// failScanEvents makes ScanEvents.Create fail inside transactions.
	failScanEvents bool
}

func newMemStore() *memStore {
	return &memStore{db: &memDB{st: newMemState()}}
}

func (m *memStore) Repositories() *repositories.Repositories {
	return m.db.repos()
}

func (m *memStore) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos *repositories.Repositories) error,
) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.db.mu.Lock()
	tx := &memDB{st: m.db.st.clone(), failScanEvents: m.failScanEvents}
	m.db.mu.Unlock()

	if err := fn(ctx, tx.repos()); err != nil {
		return err
	}

	m.db.mu.Lock()
	m.db.st = tx.st
	m.db.mu.Unlock()
	return nil
}

func (m *memStore) consumedCount() int {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return len(m.db.st.consumed)
}

// event reads a committed scan event.
func (m *memStore) event(id uuid.UUID) (models.ScanEvent, bool) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	ev, ok := m.db.st.events[id]
	return ev, ok
}

func (m *memStore) eventCount() int {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return len(m.db.st.events)
}

func (d *memDB) repos() *repositories.Repositories {
	return &repositories.Repositories{
		Checkpoints:        memCheckpoints{d},
		RouteCheckpoints:   memRouteCheckpoints{d},
		PatrolRuns:         memPatrolRuns{d},
		ConsumedChallenges: memLedger{d},
		ScanEvents:         memScanEvents{d},
	}
}

// ----------------------------------------------------------------
// Checkpoints
// ----------------------------------------------------------------

type memCheckpoints struct{ d *memDB }

func (r memCheckpoints) Create(_ context.Context, c *models.Checkpoint) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.st.checkpoints[c.ID] = *c
	return nil
}

func (r memCheckpoints) GetByID(_ context.Context, id uuid.UUID) (*models.Checkpoint, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.st.checkpoints[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memCheckpoints) GetByCode(_ context.Context, code string) (*models.Checkpoint, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, c := range r.d.st.checkpoints {
		if c.Code == code {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

// ----------------------------------------------------------------
// Route checkpoints
// ----------------------------------------------------------------

type memRouteCheckpoints struct{ d *memDB }

func (r memRouteCheckpoints) Create(_ context.Context, rc *models.RouteCheckpoint) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.st.routeCPs = append(r.d.st.routeCPs, *rc)
	return nil
}

func (r memRouteCheckpoints) ListByRouteID(_ context.Context, routeID uuid.UUID) ([]*models.RouteCheckpoint, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*models.RouteCheckpoint
	for _, rc := range r.d.st.routeCPs {
		if rc.RouteID == routeID {
			v := rc
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ----------------------------------------------------------------
// Patrol runs
// ----------------------------------------------------------------

type memPatrolRuns struct{ d *memDB }

func (r memPatrolRuns) Create(_ context.Context, run *models.PatrolRun) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.st.runs[run.ID] = *run
	return nil
}

func (r memPatrolRuns) GetActiveByOrganization(_ context.Context, orgID uuid.UUID) (*models.PatrolRun, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var best *models.PatrolRun
	for _, run := range r.d.st.runs {
		if run.OrganizationID != orgID || !run.Status.IsActive() {
			continue
		}
		v := run
		if best == nil ||
			v.PlannedStart.Before(best.PlannedStart) ||
			(v.PlannedStart.Equal(best.PlannedStart) && v.ID.String() < best.ID.String()) {
			best = &v
		}
	}
	return best, nil
}

// ----------------------------------------------------------------
// Ledger
// ----------------------------------------------------------------

type memLedger struct{ d *memDB }

func (r memLedger) Insert(_ context.Context, c *models.ConsumedChallenge) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.st.consumed[c.JTI]; ok {
		return false, nil
	}
	r.d.st.consumed[c.JTI] = *c
	return true, nil
}

func (r memLedger) Exists(_ context.Context, jti string) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	_, ok := r.d.st.consumed[jti]
	return ok, nil
}

func (r memLedger) GetByJTI(_ context.Context, jti string) (*models.ConsumedChallenge, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.st.consumed[jti]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memLedger) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var n int64
	for k, c := range r.d.st.consumed {
		if c.ExpiresAt.Before(cutoff) {
			delete(r.d.st.consumed, k)
			n++
		}
	}
	return n, nil
}

// ----------------------------------------------------------------
// Scan events
// ----------------------------------------------------------------

var errScanEventWrite = errors.New("scan event write failed")

type memScanEvents struct{ d *memDB }

func (r memScanEvents) Create(_ context.Context, ev *models.ScanEvent) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.d.failScanEvents {
		return errScanEventWrite
	}
	r.d.st.events[ev.ID] = *ev
	return nil
}

// ----------------------------------------------------------------
// Ledger stand-in for ChallengeService tests, with call accounting
// ----------------------------------------------------------------

type countingLedger struct {
	memLedger
	mu      sync.Mutex
	inserts int
	exists  int
	failErr error
}

func newCountingLedger() *countingLedger {
	return &countingLedger{memLedger: memLedger{&memDB{st: newMemState()}}}
}

func (l *countingLedger) Insert(ctx context.Context, c *models.ConsumedChallenge) (bool, error) {
	l.mu.Lock()
	l.inserts++
	failErr := l.failErr
	l.mu.Unlock()
	if failErr != nil {
		return false, failErr
	}
	return l.memLedger.Insert(ctx, c)
}

func (l *countingLedger) Exists(ctx context.Context, jti string) (bool, error) {
	l.mu.Lock()
	l.exists++
	l.mu.Unlock()
	return l.memLedger.Exists(ctx, jti)
}

// stubCache is a ConsumedChallengeCache with scripted answers.
type stubCache struct {
	mu         sync.Mutex
	hits       map[string]bool
	err        error
	remembered map[string]time.Time
}

func newStubCache() *stubCache {
	return &stubCache{hits: map[string]bool{}, remembered: map[string]time.Time{}}
}

func (c *stubCache) Contains(_ context.Context, jti string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.hits[jti], nil
}

func (c *stubCache) Remember(_ context.Context, jti string, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remembered[jti] = until
	return nil
}

func (c *stubCache) Ping(context.Context) error { return nil }
