//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/config"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/services"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("integration-secret-0123456789abcdef")

type scanEnv struct {
	org    uuid.UUID
	cp     *models.Checkpoint
	run    *models.PatrolRun
	repos  *repositories.Repositories
	svc    services.ScanService
	caller services.Caller
}

// newScanEnv seeds a fresh organization with one checkpoint on an
// in-progress run. Every test gets its own org so runs do not interfere.
func newScanEnv(t *testing.T) *scanEnv {
	t.Helper()
	ctx := context.Background()
	repos := repositories.NewRepositories(db)

	org := uuid.New()
	route := uuid.New()
	cp := &models.Checkpoint{
		ID:             uuid.New(),
		OrganizationID: org,
		SiteID:         uuid.New(),
		Code:           "CP-" + uuid.NewString()[:8],
		Name:           "gate",
	}
	require.NoError(t, repos.Checkpoints.Create(ctx, cp))
	require.NoError(t, repos.RouteCheckpoints.Create(ctx, &models.RouteCheckpoint{
		RouteID: route, CheckpointID: cp.ID, Seq: 1, MinOffsetSec: 0, MaxOffsetSec: 3600,
	}))
	now := time.Now().UTC()
	run := &models.PatrolRun{
		ID:             uuid.New(),
		OrganizationID: org,
		RouteID:        route,
		Status:         models.PatrolRunStatusInProgress,
		PlannedStart:   now.Add(-5 * time.Minute),
		PlannedEnd:     now.Add(time.Hour),
	}
	require.NoError(t, repos.PatrolRuns.Create(ctx, run))

	codec, err := services.NewChallengeCodec(testSecret)
	require.NoError(t, err)
	cfg := &config.Config{ChallengeTTL: time.Minute}
	challenges := services.NewChallengeService(codec, services.NewLedgerReplayGuard(repos.ConsumedChallenges, nil, false), cfg.ChallengeTTL)
	svc := services.NewScanService(cfg, repos, repositories.NewUnitOfWork(db), challenges, services.NewRoleAuthorizer(), nil)

	return &scanEnv{
		org:    org,
		cp:     cp,
		run:    run,
		repos:  repos,
		svc:    svc,
		caller: services.Caller{UserID: uuid.New(), OrgID: org, Role: utils.RoleWorker, DeviceID: "device-1"},
	}
}

func countScanEvents(t *testing.T, runID uuid.UUID) int {
	t.Helper()
	var n int
	err := db.QueryRow(context.Background(), `SELECT COUNT(*) FROM scan_events WHERE patrol_run_id=$1`, runID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestScanFlow_StartFinishReplay(t *testing.T) {
	ctx := context.Background()
	env := newScanEnv(t)

	started, err := env.svc.StartScan(ctx, env.org, "device-1", env.cp.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, started.Policy.Order)
	assert.Nil(t, started.Policy.GeoConstraint)

	done, err := env.svc.FinishScan(ctx, env.caller, started.Challenge, services.ScanMetadata{DeviceID: "device-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ScanVerdictOK, done.Verdict)

	var runID uuid.UUID
	require.NoError(t, db.QueryRow(ctx, `SELECT patrol_run_id FROM scan_events WHERE id=$1`, done.EventID).Scan(&runID))
	assert.Equal(t, env.run.ID, runID)

	_, err = env.svc.FinishScan(ctx, env.caller, started.Challenge, services.ScanMetadata{DeviceID: "device-1"})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)

	assert.Equal(t, 1, countScanEvents(t, env.run.ID))
}

func TestScanFlow_RunSwitchedToRouteWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	env := newScanEnv(t)

	started, err := env.svc.StartScan(ctx, env.org, "device-1", env.cp.Code)
	require.NoError(t, err)

	_, err = db.Exec(ctx, `UPDATE patrol_runs SET status=$1 WHERE id=$2`, string(models.PatrolRunStatusCompleted), env.run.ID)
	require.NoError(t, err)
	now := time.Now().UTC()
	next := &models.PatrolRun{
		ID:             uuid.New(),
		OrganizationID: env.org,
		RouteID:        uuid.New(),
		Status:         models.PatrolRunStatusInProgress,
		PlannedStart:   now,
		PlannedEnd:     now.Add(time.Hour),
	}
	require.NoError(t, env.repos.PatrolRuns.Create(ctx, next))

	_, err = env.svc.FinishScan(ctx, env.caller, started.Challenge, services.ScanMetadata{DeviceID: "device-1"})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrCodeCheckpointNotInRoute, appErr.Code)
	assert.Zero(t, countScanEvents(t, next.ID))

	codec, err := services.NewChallengeCodec(testSecret)
	require.NoError(t, err)
	claims, err := codec.ParseUnverified(started.Challenge)
	require.NoError(t, err)
	exists, err := env.repos.ConsumedChallenges.Exists(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestScanFlow_ConcurrentFinish(t *testing.T) {
	const n = 50
	ctx := context.Background()
	env := newScanEnv(t)

	started, err := env.svc.StartScan(ctx, env.org, "device-1", env.cp.Code)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.svc.FinishScan(ctx, env.caller, started.Challenge, services.ScanMetadata{DeviceID: "device-1"})
		}(i)
	}
	close(start)
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var appErr *utils.AppError
		require.True(t, errors.As(err, &appErr), "unexpected error: %v", err)
		require.Equal(t, http.StatusConflict, appErr.StatusCode)
		conflicts++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	assert.Equal(t, 1, countScanEvents(t, env.run.ID))
}

func TestLedger_ConcurrentInsert(t *testing.T) {
	const n = 50
	ctx := context.Background()
	ledger := repositories.NewConsumedChallengeRepository(db)
	now := time.Now().UTC()
	rec := &models.ConsumedChallenge{
		JTI:          uuid.NewString(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Minute),
		UsedAt:       now,
		DeviceID:     "device-1",
		CheckpointID: uuid.New(),
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Insert(ctx, rec)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestLedger_RollbackLeavesChallengeRedeemable(t *testing.T) {
	ctx := context.Background()
	uow := repositories.NewUnitOfWork(db)
	now := time.Now().UTC()
	rec := &models.ConsumedChallenge{
		JTI:          uuid.NewString(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Minute),
		UsedAt:       now,
		DeviceID:     "device-1",
		CheckpointID: uuid.New(),
	}
	boom := errors.New("scan event write failed")

	err := uow.WithinTx(ctx, func(ctx context.Context, repos *repositories.Repositories) error {
		ok, err := repos.ConsumedChallenges.Insert(ctx, rec)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	ledger := repositories.NewConsumedChallengeRepository(db)
	exists, err := ledger.Exists(ctx, rec.JTI)
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err := ledger.Insert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerCleanup(t *testing.T) {
	ctx := context.Background()
	ledger := repositories.NewConsumedChallengeRepository(db)
	now := time.Now().UTC()

	old := &models.ConsumedChallenge{
		JTI: uuid.NewString(), IssuedAt: now.Add(-73 * time.Hour), ExpiresAt: now.Add(-72 * time.Hour),
		UsedAt: now.Add(-72 * time.Hour), DeviceID: "device-1", CheckpointID: uuid.New(),
	}
	fresh := &models.ConsumedChallenge{
		JTI: uuid.NewString(), IssuedAt: now, ExpiresAt: now.Add(time.Minute),
		UsedAt: now, DeviceID: "device-1", CheckpointID: uuid.New(),
	}
	for _, rec := range []*models.ConsumedChallenge{old, fresh} {
		ok, err := ledger.Insert(ctx, rec)
		require.NoError(t, err)
		require.True(t, ok)
	}

	deleted, err := services.NewLedgerCleanupService(ledger, 24*time.Hour).CleanupExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	exists, err := ledger.Exists(ctx, old.JTI)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = ledger.Exists(ctx, fresh.JTI)
	require.NoError(t, err)
	assert.True(t, exists)
}
