// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             *zap.Logger
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	var body struct {
		ContactID        int     `json:"contact_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	preview, err := c.CampaignService.RenderPreview(r.Context(), middleware.UserID(r.Context()), campaignID, body.ContactID, body.OverrideTemplate)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject":       preview.Subject,
		"content":       preview.Content,
		"used_template": body.OverrideTemplate,
		"contact_id":    body.ContactID,
	})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	campaign, err := c.CampaignService.Build(r.Context(), middleware.UserID(r.Context()), body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := paging(r)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	page, err := c.CampaignService.List(r.Context(), middleware.UserID(r.Context()), service.CampaignQuery{
		Skip:   skip,
		Limit:  limit,
		Status: model.CampaignStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetCampaignDetails returns the campaign together with per-status email counts.
func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	details, err := c.CampaignService.Details(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	var body service.CampaignUpdate
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	campaign, err := c.CampaignService.Update(r.Context(), middleware.UserID(r.Context()), id, body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	if err := c.CampaignService.Delete(r.Context(), middleware.UserID(r.Context()), id); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendCampaign only flips the status and enqueues the job; the pass itself runs on a worker.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.Send)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.Pause)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.Resume)
}

func (c *CampaignController) lifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID, id int) (*service.SendCampaignResult, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	result, err := op(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) SendTest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	var body struct {
		TestEmail string `json:"test_email"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	if err := c.CampaignService.SendTest(r.Context(), middleware.UserID(r.Context()), id, body.TestEmail); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Test email sent to " + body.TestEmail})
}

func (c *CampaignController) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	campaign, err := c.CampaignService.Duplicate(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}
