package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/poofware/patrol-service/internal/dtos"
	"github.com/poofware/patrol-service/internal/utils"
)

const healthTimeout = 2 * time.Second

// Pinger is anything the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db    Pinger
	cache Pinger
}

// NewHealthController probes db and, when non-nil, the replay cache.
func NewHealthController(db Pinger, cache Pinger) *HealthController {
	return &HealthController{db: db, cache: cache}
}

func (c *HealthController) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		utils.RespondErrorWithCode(
			w,
			http.StatusServiceUnavailable,
			utils.ErrCodeInternal,
			"Database unreachable",
			nil,
			err,
		)
		return
	}
	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			utils.RespondErrorWithCode(
				w,
				http.StatusServiceUnavailable,
				utils.ErrCodeInternal,
				"Cache unreachable",
				nil,
				err,
			)
			return
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, dtos.HealthCheckResponse{Status: "OK"})
}
