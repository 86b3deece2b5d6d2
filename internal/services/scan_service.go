package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/config"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// scannedAtSkew tolerates handset clock drift on reported scan times.
const scannedAtSkew = 5 * time.Second

// ScanMetadata is what the handset reports when it finishes a scan.
type ScanMetadata struct {
	DeviceID  string
	Latitude  *float64
	Longitude *float64
	ScannedAt *time.Time
}

// StartScanResult is returned to the handset at scan start.
type StartScanResult struct {
	Challenge string
	Policy    models.ScanPolicy
}

// FinishScanResult identifies the recorded scan event.
type FinishScanResult struct {
	EventID uuid.UUID
	Verdict models.ScanVerdictType
}

// ScanService drives the start/finish workflow around the ChallengeService.
type ScanService interface {
	StartScan(ctx context.Context, orgID uuid.UUID, deviceID, checkpointCode string) (*StartScanResult, error)
	FinishScan(ctx context.Context, caller Caller, challenge string, meta ScanMetadata) (*FinishScanResult, error)
}

type scanService struct {
	cfg        *config.Config
	repos      *repositories.Repositories
	uow        repositories.UnitOfWork
	challenges ChallengeService
	authorizer Authorizer
	cache      repositories.ConsumedChallengeCache
	now        func() time.Time
}

// NewScanService wires the scan workflow. cache may be nil.
func NewScanService(
	cfg *config.Config,
	repos *repositories.Repositories,
	uow repositories.UnitOfWork,
	challenges ChallengeService,
	authorizer Authorizer,
	cache repositories.ConsumedChallengeCache,
) ScanService {
	return &scanService{
		cfg:        cfg,
		repos:      repos,
		uow:        uow,
		challenges: challenges,
		authorizer: authorizer,
		cache:      cache,
		now:        time.Now,
	}
}

// ----------------------------------------------------------------
// StartScan
// ----------------------------------------------------------------

func (s *scanService) StartScan(
	ctx context.Context,
	orgID uuid.UUID,
	deviceID string,
	checkpointCode string,
) (*StartScanResult, error) {
	if deviceID == "" {
		return nil, utils.NewBadRequest(utils.ErrCodeMissingDeviceID, "device id is required", utils.ErrInvalidPayload)
	}

	cp, err := s.repos.Checkpoints.GetByCode(ctx, checkpointCode)
	if err != nil {
		return nil, fmt.Errorf("lookup checkpoint %q: %w", checkpointCode, err)
	}
	if cp == nil {
		return nil, utils.NewNotFound("checkpoint not found", utils.ErrCheckpointNotFound)
	}
	if cp.OrganizationID != orgID {
		return nil, utils.NewForbidden("organization mismatch", utils.ErrOrganizationMismatch)
	}

	run, err := s.repos.PatrolRuns.GetActiveByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("lookup active run: %w", err)
	}
	if run == nil {
		return nil, utils.NewNotFound("no active patrol run", utils.ErrNoActivePatrolRun)
	}

	route, err := s.repos.RouteCheckpoints.ListByRouteID(ctx, run.RouteID)
	if err != nil {
		return nil, fmt.Errorf("lookup route checkpoints: %w", err)
	}
	membership := findMembership(route, cp)
	if membership == nil {
		return nil, utils.NewBadRequest(utils.ErrCodeCheckpointNotInRoute, "checkpoint not in route", utils.ErrCheckpointNotInRoute)
	}

	token, err := s.challenges.Issue(ctx, ChallengeContext{
		OrgID:        orgID,
		DeviceID:     deviceID,
		CheckpointID: cp.ID,
	}, s.cfg.ChallengeTTL)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}

	utils.Logger.WithFields(logrus.Fields{
		"org_id":        orgID,
		"device_id":     deviceID,
		"checkpoint_id": cp.ID,
		"run_id":        run.ID,
	}).Debug("scan challenge issued")

	return &StartScanResult{
		Challenge: token,
		Policy:    BuildScanPolicy(run, cp, membership),
	}, nil
}

// ----------------------------------------------------------------
// FinishScan
// ----------------------------------------------------------------

func (s *scanService) FinishScan(
	ctx context.Context,
	caller Caller,
	challenge string,
	meta ScanMetadata,
) (*FinishScanResult, error) {
	if err := validateScanMetadata(meta); err != nil {
		return nil, err
	}

	// 1) Untrusted parse, only to learn what to validate against.
	expected, err := s.expectedContext(challenge, meta)
	if err != nil {
		return nil, err
	}

	// 2) Caller must belong to the org the challenge claims.
	if err := s.authorizer.Authorize(ctx, caller, expected.OrgID); err != nil {
		return nil, err
	}

	var (
		result   *FinishScanResult
		consumed ChallengeOutcome
	)

	// 3-5) Ledger insert and scan event share one transaction.
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos *repositories.Repositories) error {
		guard := NewLedgerReplayGuard(repos.ConsumedChallenges, s.cache, s.cfg.LDFlag_LedgerFastPathCheck)
		outcome, err := s.challenges.WithReplayGuard(guard).ValidateAndConsume(ctx, challenge, expected)
		if err != nil {
			return err
		}
		switch outcome.Kind {
		case OutcomeInvalid:
			return utils.NewBadRequest(utils.ErrCodeInvalidChallenge, outcome.Reason, nil)
		case OutcomeReplay:
			s.logReplay(ctx, repos, outcome, expected)
			return utils.NewConflict(utils.ErrCodeChallengeReplayed, "challenge "+outcome.Reason, nil)
		case OutcomeValid:
		default:
			return fmt.Errorf("unexpected challenge outcome %s", outcome.Kind)
		}
		consumed = outcome

		scannedAt, err := resolveScannedAt(meta.ScannedAt, outcome.Claims, s.now())
		if err != nil {
			return err
		}

		run, err := repos.PatrolRuns.GetActiveByOrganization(ctx, expected.OrgID)
		if err != nil {
			return fmt.Errorf("lookup active run: %w", err)
		}
		if run == nil {
			return utils.NewNotFound("no active patrol run", utils.ErrNoActivePatrolRun)
		}

		// The run may have changed since the challenge was issued; the
		// checkpoint must still be on the route of the run we record against.
		cp, membership, err := routeMembership(ctx, repos, run, expected.CheckpointID)
		if err != nil {
			return err
		}

		verdict := models.ScanVerdictOK
		if s.cfg.LDFlag_EvaluateScanPolicy {
			policy := BuildScanPolicy(run, cp, membership)
			verdict = EvaluateScan(policy, run.PlannedStart, scannedAt, meta.Latitude, meta.Longitude)
		}

		ev := &models.ScanEvent{
			ID:           uuid.New(),
			PatrolRunID:  run.ID,
			CheckpointID: expected.CheckpointID,
			UserID:       caller.UserID,
			ScannedAt:    scannedAt,
			Latitude:     meta.Latitude,
			Longitude:    meta.Longitude,
			Verdict:      verdict,
		}
		if err := repos.ScanEvents.Create(ctx, ev); err != nil {
			return fmt.Errorf("create scan event: %w", err)
		}
		result = &FinishScanResult{EventID: ev.ID, Verdict: verdict}
		return nil
	})
	if err != nil {
		var appErr *utils.AppError
		if !errors.As(err, &appErr) {
			utils.Logger.WithError(err).WithField("org_id", expected.OrgID).Error("finish scan transaction failed")
		}
		return nil, err
	}

	if s.cache != nil && consumed.Claims != nil && consumed.Claims.ExpiresAt != nil {
		if cErr := s.cache.Remember(ctx, consumed.JTI, consumed.Claims.ExpiresAt.Time); cErr != nil {
			utils.Logger.WithError(cErr).WithField("jti", consumed.JTI).Warn("failed to cache consumed challenge")
		}
	}

	utils.Logger.WithFields(logrus.Fields{
		"event_id":      result.EventID,
		"jti":           consumed.JTI,
		"org_id":        expected.OrgID,
		"checkpoint_id": expected.CheckpointID,
		"verdict":       result.Verdict,
	}).Info("scan recorded")

	return result, nil
}

// expectedContext reads org/device/checkpoint from the unverified claims.
// A device id reported by the handset takes precedence over the claim so a
// challenge cannot be finished from a different device.
func (s *scanService) expectedContext(challenge string, meta ScanMetadata) (ChallengeContext, error) {
	claims, err := s.challenges.ParseUnverified(challenge)
	if err != nil {
		return ChallengeContext{}, utils.NewBadRequest(utils.ErrCodeInvalidChallenge, ReasonMalformed, err)
	}
	orgID, err := uuid.Parse(claims.Org)
	if err != nil {
		return ChallengeContext{}, utils.NewBadRequest(utils.ErrCodeInvalidChallenge, ReasonInvalidOrg, err)
	}
	cpID, err := uuid.Parse(claims.CP)
	if err != nil {
		return ChallengeContext{}, utils.NewBadRequest(utils.ErrCodeInvalidChallenge, ReasonInvalidCheckpoint, err)
	}
	deviceID := meta.DeviceID
	if deviceID == "" {
		deviceID = claims.Dev
	}
	return ChallengeContext{OrgID: orgID, DeviceID: deviceID, CheckpointID: cpID}, nil
}

// logReplay records who first redeemed a replayed challenge. A lookup failure
// only degrades the log line.
func (s *scanService) logReplay(
	ctx context.Context,
	repos *repositories.Repositories,
	outcome ChallengeOutcome,
	expected ChallengeContext,
) {
	entry := utils.Logger.WithFields(logrus.Fields{
		"jti":           outcome.JTI,
		"org_id":        expected.OrgID,
		"device_id":     expected.DeviceID,
		"checkpoint_id": expected.CheckpointID,
	})
	first, err := repos.ConsumedChallenges.GetByJTI(ctx, outcome.JTI)
	switch {
	case err != nil:
		entry = entry.WithError(err)
	case first != nil:
		entry = entry.WithFields(logrus.Fields{
			"first_used_at":   first.UsedAt,
			"first_device_id": first.DeviceID,
		})
	}
	entry.Warn("challenge replay rejected")
}

func routeMembership(
	ctx context.Context,
	repos *repositories.Repositories,
	run *models.PatrolRun,
	checkpointID uuid.UUID,
) (*models.Checkpoint, *models.RouteCheckpoint, error) {
	cp, err := repos.Checkpoints.GetByID(ctx, checkpointID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup checkpoint: %w", err)
	}
	if cp == nil {
		return nil, nil, utils.NewNotFound("checkpoint not found", utils.ErrCheckpointNotFound)
	}
	route, err := repos.RouteCheckpoints.ListByRouteID(ctx, run.RouteID)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup route checkpoints: %w", err)
	}
	membership := findMembership(route, cp)
	if membership == nil {
		return nil, nil, utils.NewBadRequest(utils.ErrCodeCheckpointNotInRoute, "checkpoint not in route", utils.ErrCheckpointNotInRoute)
	}
	return cp, membership, nil
}

// resolveScannedAt picks the event time. A handset-reported time must fall
// between the challenge's iat and now, give or take scannedAtSkew.
func resolveScannedAt(reported *time.Time, claims *models.ChallengeClaims, now time.Time) (time.Time, error) {
	now = now.UTC()
	if reported == nil {
		return now, nil
	}
	at := reported.UTC()
	if at.After(now.Add(scannedAtSkew)) {
		return time.Time{}, utils.NewBadRequest(utils.ErrCodeInvalidPayload, "scanned_at is in the future", utils.ErrScannedAtOutOfRange)
	}
	if claims != nil && claims.IssuedAt != nil && at.Before(claims.IssuedAt.Time.Add(-scannedAtSkew)) {
		return time.Time{}, utils.NewBadRequest(utils.ErrCodeInvalidPayload, "scanned_at predates the challenge", utils.ErrScannedAtOutOfRange)
	}
	return at, nil
}

func validateScanMetadata(meta ScanMetadata) error {
	if (meta.Latitude == nil) != (meta.Longitude == nil) {
		return utils.NewBadRequest(utils.ErrCodeInvalidPayload, "lat and lon must be sent together", utils.ErrInvalidPayload)
	}
	if meta.Latitude != nil && !utils.ValidCoordinates(*meta.Latitude, *meta.Longitude) {
		return utils.NewBadRequest(utils.ErrCodeInvalidPayload, "lat/lon out of range", utils.ErrInvalidPayload)
	}
	return nil
}
