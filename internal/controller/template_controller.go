package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
	Log             *zap.Logger
}

func (c *TemplateController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.TemplateInput
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	t, err := c.TemplateService.Create(r.Context(), middleware.UserID(r.Context()), body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTemplates returns the caller's templates plus the shared defaults.
func (c *TemplateController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := paging(r)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	q := r.URL.Query()
	page, err := c.TemplateService.List(r.Context(), middleware.UserID(r.Context()), skip, limit, q.Get("category"), q.Get("search"))
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *TemplateController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	t, err := c.TemplateService.Get(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	var body service.TemplateUpdate
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	t, err := c.TemplateService.Update(r.Context(), middleware.UserID(r.Context()), id, body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	if err := c.TemplateService.Delete(r.Context(), middleware.UserID(r.Context()), id); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *TemplateController) DuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	t, err := c.TemplateService.Duplicate(r.Context(), middleware.UserID(r.Context()), id, r.URL.Query().Get("new_name"))
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (c *TemplateController) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := c.TemplateService.Categories(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}
