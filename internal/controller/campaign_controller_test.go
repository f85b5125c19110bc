package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/middleware"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

const ownerID = 7

// --- Mock Repositories ---

// Unused interface methods panic through the nil embedded interface.
type MockContactRepo struct {
	repository.ContactRepositoryInterface
	contacts []*model.Contact
}

func (m *MockContactRepo) GetByID(ctx context.Context, userID, id int) (*model.Contact, error) {
	for _, c := range m.contacts {
		if c.ID == id && c.UserID == userID {
			return c, nil
		}
	}
	return nil, appErrors.NewNotFound("contact", id)
}

func (m *MockContactRepo) List(ctx context.Context, userID int, f repository.ContactFilter) ([]*model.Contact, int, error) {
	var out []*model.Contact
	for _, c := range m.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

type MockCampaignRepo struct {
	repository.CampaignRepositoryInterface
	campaigns []*model.Campaign
	listErr   error
}

func (m *MockCampaignRepo) GetForUser(ctx context.Context, userID, id int) (*model.Campaign, error) {
	for _, c := range m.campaigns {
		if c.ID == id && c.UserID == userID {
			return c, nil
		}
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

func (m *MockCampaignRepo) GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error) {
	return map[string]int{"sent": 3, "failed": 1}, nil
}

func (m *MockCampaignRepo) List(ctx context.Context, userID int, f repository.CampaignFilter) ([]*model.Campaign, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if c.UserID != userID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		filtered = append(filtered, c)
	}
	total := len(filtered)

	start := min(f.Offset, total)
	end := min(f.Offset+f.Limit, total)
	return filtered[start:end], total, nil
}

// --- Helpers ---

func newRouter(campaigns *MockCampaignRepo, contacts *MockContactRepo) http.Handler {
	log := zap.NewNop()
	cc := &controller.CampaignController{
		CampaignService: &service.CampaignService{
			CampaignRepo: campaigns,
			ContactRepo:  contacts,
			Log:          log,
		},
		Log: log,
	}
	ctc := &controller.ContactController{
		ContactService: &service.ContactService{ContactRepo: contacts, Log: log},
		Log:            log,
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), ownerID)))
		})
	})
	r.Get("/campaigns", cc.ListCampaigns)
	r.Get("/campaigns/{id}", cc.GetCampaignDetails)
	r.Post("/campaigns/{id}/personalized-preview", cc.PersonalizedPreview)
	r.Get("/contacts/export/csv", ctc.ExportContacts)
	return r
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var res map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	return res["detail"]
}

// --- Tests ---

func TestPersonalizedPreviewHandler(t *testing.T) {
	campaigns := &MockCampaignRepo{campaigns: []*model.Campaign{{
		ID:      1,
		UserID:  ownerID,
		Subject: "News for {{first_name}}",
		Content: "Hi {{first_name}} {{last_name}}, greetings to {{company}}!",
	}}}
	contacts := &MockContactRepo{contacts: []*model.Contact{{
		ID:        4,
		UserID:    ownerID,
		FirstName: "Alice",
		LastName:  "Smith",
		Company:   "Acme",
	}}}
	h := newRouter(campaigns, contacts)

	w := do(t, h, http.MethodPost, "/campaigns/1/personalized-preview", map[string]any{"contact_id": 4})
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "News for Alice", res["subject"])
	assert.Equal(t, "Hi Alice Smith, greetings to Acme!", res["content"])
	assert.Nil(t, res["used_template"])

	override := "Custom {{first_name}}"
	w = do(t, h, http.MethodPost, "/campaigns/1/personalized-preview", map[string]any{"contact_id": 4, "override_template": override})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "Custom Alice", res["content"])
	assert.Equal(t, override, res["used_template"])
}

func TestPersonalizedPreviewOtherOwnersContact(t *testing.T) {
	campaigns := &MockCampaignRepo{campaigns: []*model.Campaign{{ID: 1, UserID: ownerID, Content: "x"}}}
	contacts := &MockContactRepo{contacts: []*model.Contact{{ID: 4, UserID: ownerID + 1}}}

	w := do(t, newRouter(campaigns, contacts), http.MethodPost, "/campaigns/1/personalized-preview", map[string]any{"contact_id": 4})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "contact with ID 4 not found", detail(t, w))
}

func TestPersonalizedPreviewInvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/personalized-preview", strings.NewReader("{"))
	w := httptest.NewRecorder()
	newRouter(&MockCampaignRepo{}, &MockContactRepo{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid body", detail(t, w))
}

func TestListCampaignsPagination(t *testing.T) {
	totalCampaigns := 25
	var campaigns []*model.Campaign
	for i := 1; i <= totalCampaigns; i++ {
		campaigns = append(campaigns, &model.Campaign{
			ID:     i,
			UserID: ownerID,
			Name:   "Campaign " + strconv.Itoa(i),
			Status: model.CampaignDraft,
		})
	}
	// Another owner's and a non-matching status never show up.
	campaigns = append(campaigns,
		&model.Campaign{ID: 100, UserID: ownerID + 1, Status: model.CampaignDraft},
		&model.Campaign{ID: 101, UserID: ownerID, Status: model.CampaignSent},
	)
	h := newRouter(&MockCampaignRepo{campaigns: campaigns}, &MockContactRepo{})

	limit := 10
	seen := map[int]bool{}
	for skip := 0; skip < totalCampaigns; skip += limit {
		w := do(t, h, http.MethodGet, "/campaigns?skip="+strconv.Itoa(skip)+"&limit="+strconv.Itoa(limit)+"&status=draft", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var res struct {
			Total int              `json:"total"`
			Items []model.Campaign `json:"items"`
			Skip  int              `json:"skip"`
			Limit int              `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
		assert.Equal(t, totalCampaigns, res.Total)
		assert.Equal(t, skip, res.Skip)
		assert.Equal(t, limit, res.Limit)
		assert.LessOrEqual(t, len(res.Items), limit)

		for _, c := range res.Items {
			assert.False(t, seen[c.ID], "campaign %d returned twice", c.ID)
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, totalCampaigns)
}

func TestListCampaignsRejectsNonNumericLimit(t *testing.T) {
	w := do(t, newRouter(&MockCampaignRepo{}, &MockContactRepo{}), http.MethodGet, "/campaigns?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "limit must be an integer", detail(t, w))
}

func TestListCampaignsHidesInternalErrors(t *testing.T) {
	repo := &MockCampaignRepo{listErr: assert.AnError}
	w := do(t, newRouter(repo, &MockContactRepo{}), http.MethodGet, "/campaigns", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", detail(t, w))
}

func TestGetCampaignDetails(t *testing.T) {
	repo := &MockCampaignRepo{campaigns: []*model.Campaign{{ID: 3, UserID: ownerID, Name: "Launch", Status: model.CampaignSent}}}
	h := newRouter(repo, &MockContactRepo{})

	w := do(t, h, http.MethodGet, "/campaigns/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		ID    int            `json:"id"`
		Name  string         `json:"name"`
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 3, res.ID)
	assert.Equal(t, "Launch", res.Name)
	assert.Equal(t, map[string]int{"sent": 3, "failed": 1}, res.Stats)

	w = do(t, h, http.MethodGet, "/campaigns/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "campaign with ID 99 not found", detail(t, w))

	w = do(t, h, http.MethodGet, "/campaigns/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportContactsCSV(t *testing.T) {
	subscribed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	contacts := &MockContactRepo{contacts: []*model.Contact{{
		ID:           1,
		UserID:       ownerID,
		Email:        "ann@example.com",
		FirstName:    "Ann",
		Tags:         []string{"vip", "beta"},
		Status:       model.ContactActive,
		SubscribedAt: subscribed,
	}}}

	w := do(t, newRouter(&MockCampaignRepo{}, contacts), http.MethodGet, "/contacts/export/csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"contacts_")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(service.ExportHeader, ","), lines[0])
	assert.Equal(t, `ann@example.com,Ann,,,"vip,beta",active,2025-03-01T12:00:00Z,0.00`, lines[1])
}
