package controller

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

const defaultAnalyticsDays = 30

type AnalyticsController struct {
	AnalyticsService *service.AnalyticsService
	Log              *zap.Logger
}

func (c *AnalyticsController) Overview(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultAnalyticsDays)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	out, err := c.AnalyticsService.Overview(r.Context(), middleware.UserID(r.Context()), days)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *AnalyticsController) Campaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	out, err := c.AnalyticsService.Campaign(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *AnalyticsController) ContactEngagement(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultAnalyticsDays)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	out, err := c.AnalyticsService.ContactEngagement(r.Context(), middleware.UserID(r.Context()), days)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": out})
}

func (c *AnalyticsController) Growth(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultAnalyticsDays)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	out, err := c.AnalyticsService.Growth(r.Context(), middleware.UserID(r.Context()), days)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Compare takes campaign_ids either repeated or comma separated.
func (c *AnalyticsController) Compare(w http.ResponseWriter, r *http.Request) {
	var ids []int
	for _, v := range queryList(r, "campaign_ids") {
		id, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, c.Log, appErrors.NewBadRequest("campaign_ids must be integers"))
			return
		}
		ids = append(ids, id)
	}
	out, err := c.AnalyticsService.Compare(r.Context(), middleware.UserID(r.Context()), ids)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": out})
}
