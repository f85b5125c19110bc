package controller

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

const maxImportBytes = 10 << 20

type ContactController struct {
	ContactService *service.ContactService
	Log            *zap.Logger
}

func (c *ContactController) query(r *http.Request) (service.ContactQuery, error) {
	skip, limit, err := paging(r)
	if err != nil {
		return service.ContactQuery{}, err
	}
	return service.ContactQuery{
		Skip:   skip,
		Limit:  limit,
		Status: model.ContactStatus(r.URL.Query().Get("status")),
		Tags:   queryList(r, "tags"),
		Search: r.URL.Query().Get("search"),
	}, nil
}

func (c *ContactController) CreateContact(w http.ResponseWriter, r *http.Request) {
	var body service.ContactInput
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	contact, err := c.ContactService.Create(r.Context(), middleware.UserID(r.Context()), body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (c *ContactController) ListContacts(w http.ResponseWriter, r *http.Request) {
	q, err := c.query(r)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	page, err := c.ContactService.List(r.Context(), middleware.UserID(r.Context()), q)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *ContactController) GetContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	contact, err := c.ContactService.Get(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (c *ContactController) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	var body service.ContactUpdate
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	contact, err := c.ContactService.Update(r.Context(), middleware.UserID(r.Context()), id, body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (c *ContactController) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	if err := c.ContactService.Delete(r.Context(), middleware.UserID(r.Context()), id); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *ContactController) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	contact, err := c.ContactService.Unsubscribe(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// ImportContacts reads the multipart "file" field; "update_existing" defaults to false.
func (c *ContactController) ImportContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		respondError(w, r, c.Log, appErrors.NewBadRequest("invalid multipart form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, c.Log, appErrors.NewBadRequest("file is required"))
		return
	}
	defer file.Close()

	updateExisting, _ := strconv.ParseBool(r.FormValue("update_existing"))
	result, err := c.ContactService.Import(r.Context(), middleware.UserID(r.Context()), file, updateExisting)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *ContactController) ExportContacts(w http.ResponseWriter, r *http.Request) {
	q, err := c.query(r)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}

	var buf bytes.Buffer
	if err := c.ContactService.Export(r.Context(), middleware.UserID(r.Context()), q, &buf); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="contacts_%s.csv"`, time.Now().UTC().Format("20060102_150405")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (c *ContactController) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := c.ContactService.Tags(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

func (c *ContactController) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var body service.BulkUpdateInput
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	n, err := c.ContactService.BulkUpdate(r.Context(), middleware.UserID(r.Context()), body)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (c *ContactController) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactIDs []int `json:"contact_ids"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	n, err := c.ContactService.BulkDelete(r.Context(), middleware.UserID(r.Context()), body.ContactIDs)
	if err != nil {
		respondError(w, r, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
