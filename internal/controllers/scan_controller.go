package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/dtos"
	"github.com/poofware/patrol-service/internal/middleware"
	"github.com/poofware/patrol-service/internal/services"
	"github.com/poofware/patrol-service/internal/utils"
)

var validate = validator.New()

type ScanController struct {
	scanService services.ScanService
}

func NewScanController(s services.ScanService) *ScanController {
	return &ScanController{scanService: s}
}

// ----------------------------------------------------------------
// POST /api/v1/scans/start
// ----------------------------------------------------------------
func (c *ScanController) StartScanHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, err.Error(), nil, nil)
		return
	}
	if caller.DeviceID == "" {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeMissingDeviceID, "X-Device-ID header is required", nil, nil,
		)
		return
	}

	var req dtos.StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON payload", nil, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "checkpoint_code required", nil, err)
		return
	}

	res, err := c.scanService.StartScan(r.Context(), caller.OrgID, caller.DeviceID, req.CheckpointCode)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, dtos.StartScanResponse{
		Challenge: res.Challenge,
		Policy:    res.Policy,
	})
}

// ----------------------------------------------------------------
// POST /api/v1/scans/finish
// ----------------------------------------------------------------
func (c *ScanController) FinishScanHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r)
	if err != nil {
		utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeUnauthorized, err.Error(), nil, nil)
		return
	}

	var req dtos.FinishScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid JSON payload", nil, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid scan payload", nil, err)
		return
	}

	res, err := c.scanService.FinishScan(r.Context(), caller, req.Challenge, services.ScanMetadata{
		DeviceID:  caller.DeviceID,
		Latitude:  req.Lat,
		Longitude: req.Lon,
		ScannedAt: req.ScannedAt,
	})
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, dtos.FinishScanResponse{
		EventID: res.EventID,
		Verdict: res.Verdict,
	})
}

// callerFromContext reads the principal AuthMiddleware stored on the request.
func callerFromContext(r *http.Request) (services.Caller, error) {
	ctx := r.Context()

	userStr, _ := ctx.Value(middleware.ContextKeyUserID).(string)
	orgStr, _ := ctx.Value(middleware.ContextKeyOrgID).(string)
	roleStr, _ := ctx.Value(middleware.ContextKeyRole).(string)
	if userStr == "" || orgStr == "" {
		return services.Caller{}, errors.New("no userID in context")
	}

	userID, err := uuid.Parse(userStr)
	if err != nil {
		return services.Caller{}, errors.New("invalid userID in context")
	}
	orgID, err := uuid.Parse(orgStr)
	if err != nil {
		return services.Caller{}, errors.New("invalid orgID in context")
	}

	return services.Caller{
		UserID:   userID,
		OrgID:    orgID,
		Role:     utils.RoleType(roleStr),
		DeviceID: utils.GetDeviceID(r),
	}, nil
}
